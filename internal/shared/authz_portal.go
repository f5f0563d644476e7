package shared

// Client portal and back-office permissions.
const (
	PermClientsView   = "clients.view"
	PermClientsManage = "clients.manage"

	PermDocumentsView   = "documents.view"
	PermDocumentsUpload = "documents.upload"

	PermSignaturesRequest = "signatures.request"

	PermAppointmentsView   = "appointments.view"
	PermAppointmentsManage = "appointments.manage"

	PermPaymentsView   = "payments.view"
	PermPaymentsManage = "payments.manage"

	PermCampaignsView = "campaigns.view"
	PermCampaignsSend = "campaigns.send"
)

// PortalScopes lists permissions for client, document, scheduling, payment and marketing features.
func PortalScopes() []string {
	return []string{
		PermClientsView,
		PermClientsManage,
		PermDocumentsView,
		PermDocumentsUpload,
		PermSignaturesRequest,
		PermAppointmentsView,
		PermAppointmentsManage,
		PermPaymentsView,
		PermPaymentsManage,
		PermCampaignsView,
		PermCampaignsSend,
	}
}
