package http

import (
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"

	"konto/internal/invest"
)

// parsePlan reads initial, monthly, years and rate from query. Missing
// values keep the default plan.
func parsePlan(query url.Values) (invest.Plan, string, bool) {
	p := invest.DefaultPlan()
	for name, dst := range map[string]*decimal.Decimal{
		"initial": &p.Initial,
		"monthly": &p.Monthly,
		"rate":    &p.AnnualRate,
	} {
		if v := strings.TrimSpace(query.Get(name)); v != "" {
			d, err := decimal.NewFromString(v)
			if err != nil {
				return invest.Plan{}, name, false
			}
			*dst = d
		}
	}
	if v := strings.TrimSpace(query.Get("years")); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return invest.Plan{}, "years", false
		}
		p.Years = n
	}
	return p, "", true
}

func (s *Server) handleProjection(w http.ResponseWriter, r *http.Request) {
	plan, bad, ok := parsePlan(r.URL.Query())
	if !ok {
		writeMessage(w, http.StatusBadRequest, "Invalid query parameter "+bad)
		return
	}
	s.writeProjection(w, r, plan)
}

func (s *Server) writeProjection(w http.ResponseWriter, r *http.Request, plan invest.Plan) {
	proj, err := invest.Project(plan, s.now().Year())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, proj)
}

func (s *Server) handleListProfiles(w http.ResponseWriter, r *http.Request) {
	list := s.svc.Invest.Profiles()
	if list == nil {
		list = []invest.Profile{}
	}
	writeJSON(w, http.StatusOK, list)
}

func (s *Server) handleCreateProfile(w http.ResponseWriter, r *http.Request) {
	var in invest.ProfileInput
	if err := decodeJSON(w, r, &in); err != nil {
		writeDecodeError(w, r, err)
		return
	}
	p, err := s.svc.Invest.Create(r.Context(), in)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, p)
}

func (s *Server) handleUpdateProfile(w http.ResponseWriter, r *http.Request) {
	var in invest.ProfileInput
	if err := decodeJSON(w, r, &in); err != nil {
		writeDecodeError(w, r, err)
		return
	}
	p, err := s.svc.Invest.Update(r.Context(), r.PathValue("id"), in)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (s *Server) handleDeleteProfile(w http.ResponseWriter, r *http.Request) {
	if err := s.svc.Invest.Delete(r.Context(), r.PathValue("id")); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleProfileProjection(w http.ResponseWriter, r *http.Request) {
	p, err := s.svc.Invest.Get(r.PathValue("id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	s.writeProjection(w, r, p.Plan)
}
