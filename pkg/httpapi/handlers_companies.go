package httpapi

import (
	"encoding/json"
	"net/http"

	"github.com/Atom1250/Compliance-App/pkg/domain"
	"github.com/google/uuid"
)

// createCompanyRequest mirrors the applicability whitelist of spec §4.7:
// a company may only carry fields an applicability rule can reference,
// plus the identifying/regime metadata needed to select bundles.
type createCompanyRequest struct {
	Name                    string   `json:"name"`
	Employees               int      `json:"employees"`
	Turnover                float64  `json:"turnover"`
	ListedStatus            bool     `json:"listed_status"`
	ReportingYear           int      `json:"reporting_year"`
	ReportingYearStart      string   `json:"reporting_year_start"`
	ReportingYearEnd        string   `json:"reporting_year_end"`
	Jurisdictions           []string `json:"jurisdictions"`
	RegulatoryRegimes       []string `json:"regulatory_regimes"`
	RegulatoryJurisdictions []string `json:"regulatory_jurisdictions"`
}

func (s *Server) handleCreateCompany(w http.ResponseWriter, r *http.Request) {
	tenantID, _ := TenantFromContext(r.Context())

	var req createCompanyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteError(w, r, http.StatusBadRequest, "Bad Request", "invalid JSON body", "")
		return
	}
	if req.Name == "" || req.ReportingYear == 0 {
		WriteError(w, r, http.StatusBadRequest, "Bad Request", "name and reporting_year are required", "")
		return
	}

	company := domain.Company{
		CompanyID:               uuid.NewString(),
		TenantID:                tenantID,
		Name:                    req.Name,
		Employees:               req.Employees,
		Turnover:                req.Turnover,
		ListedStatus:            req.ListedStatus,
		ReportingYear:           req.ReportingYear,
		ReportingYearStart:      req.ReportingYearStart,
		ReportingYearEnd:        req.ReportingYearEnd,
		Jurisdictions:           req.Jurisdictions,
		RegulatoryRegimes:       req.RegulatoryRegimes,
		RegulatoryJurisdictions: req.RegulatoryJurisdictions,
	}

	if err := s.DB.SaveCompany(r.Context(), company); err != nil {
		WriteFromError(w, r, err)
		return
	}
	WriteJSON(w, http.StatusCreated, company)
}
