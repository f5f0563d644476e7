package rbac

import "github.com/taxpilot/taxpilot/internal/shared"

// DefaultCatalog is the permission catalog seeded at startup.
func DefaultCatalog() []Permission {
	return []Permission{
		{Slug: shared.PermClientsView, Label: "View clients", Description: "Browse client profiles and contact details", Group: "clients", SortOrder: 10},
		{Slug: shared.PermClientsManage, Label: "Manage clients", Description: "Create, edit and archive client records", Group: "clients", SortOrder: 20},
		{Slug: shared.PermDocumentsView, Label: "View documents", Description: "Download uploaded client documents", Group: "documents", SortOrder: 10},
		{Slug: shared.PermDocumentsUpload, Label: "Upload documents", Description: "Upload documents on behalf of clients", Group: "documents", SortOrder: 20},
		{Slug: shared.PermSignaturesRequest, Label: "Request signatures", Description: "Send e-signature requests for filing forms", Group: "signatures", SortOrder: 10},
		{Slug: shared.PermAppointmentsView, Label: "View appointments", Description: "See the office appointment calendar", Group: "appointments", SortOrder: 10},
		{Slug: shared.PermAppointmentsManage, Label: "Manage appointments", Description: "Book, move and cancel appointments", Group: "appointments", SortOrder: 20},
		{Slug: shared.PermPaymentsView, Label: "View payments", Description: "See invoices and payment history", Group: "payments", SortOrder: 10},
		{Slug: shared.PermPaymentsManage, Label: "Manage payments", Description: "Record payments and refunds", Group: "payments", SortOrder: 20},
		{Slug: shared.PermFilingsView, Label: "View filings", Description: "See tax filings and their status history", Group: "filings", SortOrder: 10},
		{Slug: shared.PermFilingsManage, Label: "Manage filings", Description: "Create filings, edit fields and change status", Group: "filings", SortOrder: 20},
		{Slug: shared.PermStaffView, Label: "View staff", Description: "List staff accounts and their roles", Group: "staff", SortOrder: 10},
		{Slug: shared.PermStaffManage, Label: "Manage staff", Description: "Change staff roles", Group: "staff", SortOrder: 20},
		{Slug: shared.PermCampaignsView, Label: "View campaigns", Description: "See marketing campaigns and their results", Group: "campaigns", SortOrder: 10},
		{Slug: shared.PermCampaignsSend, Label: "Send campaigns", Description: "Schedule and send marketing campaigns", Group: "campaigns", SortOrder: 20},
		{Slug: shared.PermPermissionsView, Label: "View permissions", Description: "See the role permission matrix", Group: "permissions", SortOrder: 10},
		{Slug: shared.PermPermissionsManage, Label: "Manage permissions", Description: "Grant and revoke role permissions", Group: "permissions", SortOrder: 20},
	}
}

// DefaultGrants lists the initial grants per non-admin role.
// Admin is never listed because it bypasses the catalog.
func DefaultGrants() map[Role][]string {
	return map[Role][]string{
		RoleClient: {
			shared.PermDocumentsUpload,
			shared.PermAppointmentsView,
		},
		RoleAgent: {
			shared.PermClientsView,
			shared.PermDocumentsView,
			shared.PermDocumentsUpload,
			shared.PermSignaturesRequest,
			shared.PermAppointmentsView,
			shared.PermAppointmentsManage,
			shared.PermFilingsView,
			shared.PermFilingsManage,
		},
		RoleTaxOffice: {
			shared.PermClientsView,
			shared.PermClientsManage,
			shared.PermDocumentsView,
			shared.PermDocumentsUpload,
			shared.PermSignaturesRequest,
			shared.PermAppointmentsView,
			shared.PermAppointmentsManage,
			shared.PermPaymentsView,
			shared.PermPaymentsManage,
			shared.PermFilingsView,
			shared.PermFilingsManage,
			shared.PermStaffView,
			shared.PermCampaignsView,
			shared.PermCampaignsSend,
		},
	}
}
