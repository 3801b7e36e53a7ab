package models

import "time"

// Metadata keys stored in an organization's info collection.
const (
	InfoProjectURL  = "projectUrl"
	InfoLogoURL     = "logoUrl"
	InfoDescription = "description"
	InfoCreatedAt   = "createdAt"
	InfoCreatedBy   = "createdBy"
)

// Organization is a deployed lifecycle-engine instance. Council, categories
// and metadata live in keyed collections under the organization id.
type Organization struct {
	ID        string    `json:"id"`
	Account   Principal `json:"account"`
	CreatedBy Principal `json:"created_by"`
	CreatedAt time.Time `json:"created_at"`
}

// OrgInfo is the public description of an organization.
type OrgInfo struct {
	ID          string      `json:"id"`
	Account     Principal   `json:"account"`
	ProjectURL  string      `json:"project_url"`
	LogoURL     string      `json:"logo_url"`
	Description string      `json:"description"`
	CreatedAt   string      `json:"created_at"`
	CreatedBy   string      `json:"created_by"`
	Categories  []string    `json:"categories"`
	Council     []Principal `json:"council"`
}
