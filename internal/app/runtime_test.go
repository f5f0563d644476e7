package app

import (
	"testing"

	"github.com/stretchr/testify/assert"

	_ "github.com/taxpilot/taxpilot/testing"
)

func TestInTestModeUnderTests(t *testing.T) {
	assert.True(t, InTestMode())
}
