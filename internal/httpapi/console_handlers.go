package httpapi

import (
	"net/http"
	"time"

	"ebdconsole.org/internal/access"
	"ebdconsole.org/internal/audit"
	"ebdconsole.org/internal/console"
	"ebdconsole.org/internal/dashboard"
	"ebdconsole.org/internal/live"
	"ebdconsole.org/internal/report"
)

type openPresentationRequest struct {
	Date string `json:"date" validate:"required,datetime=2006-01-02"`
}

type commandRequest struct {
	ItemID string   `json:"item_id" validate:"omitempty,max=128"`
	Order  []string `json:"order" validate:"omitempty,max=500,dive,required,max=128"`
	Index  *int     `json:"index" validate:"omitempty,min=0"`
}

type invalidateRequest struct {
	CongregationID string `json:"congregation_id" validate:"omitempty,max=128"`
	Collection     string `json:"collection" validate:"omitempty,oneof=congregations classes"`
	Reason         string `json:"reason" validate:"max=256"`
}

type dashboardQuery struct {
	From   string `validate:"required,datetime=2006-01-02"`
	To     string `validate:"required,datetime=2006-01-02"`
	Metric string `validate:"omitempty,oneof=present enrolled visitors offering"`
	Narrow string `validate:"omitempty,max=128"`
}

// Scope reports the caller's tier and data partition.
func (a *API) Scope(w http.ResponseWriter, r *http.Request) {
	s, err := a.session(r)
	if err != nil {
		writeFailure(w, r, err)
		return
	}
	identity := s.Identity()
	writeJSON(w, http.StatusOK, map[string]any{
		"identity": map[string]any{
			"id":           identity.ID,
			"display_name": identity.DisplayName,
			"role":         identity.Role,
		},
		"tier":  s.Scope().Tier().String(),
		"scope": s.Scope(),
	})
}

func (a *API) Reference(w http.ResponseWriter, r *http.Request) {
	s, err := a.session(r)
	if err != nil {
		writeFailure(w, r, err)
		return
	}
	ctx, cancel := a.withFetchTimeout(r.Context())
	defer cancel()
	snap, err := s.Reference(ctx)
	if err != nil {
		writeFailure(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

func (a *API) Refetch(w http.ResponseWriter, r *http.Request) {
	s, err := a.session(r)
	if err != nil {
		writeFailure(w, r, err)
		return
	}
	ctx, cancel := a.withFetchTimeout(r.Context())
	defer cancel()
	snap, err := s.Refetch(ctx)
	if err != nil {
		writeFailure(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

// Invalidate announces an external change to reference data. Class
// secretaries cannot publish; congregation admins publish for their own
// congregation only.
func (a *API) Invalidate(w http.ResponseWriter, r *http.Request) {
	s, err := a.session(r)
	if err != nil {
		writeFailure(w, r, err)
		return
	}
	if a.hub == nil {
		respondError(w, http.StatusServiceUnavailable, "live updates disabled")
		return
	}
	var req invalidateRequest
	if err := a.decodeBody(r, &req); err != nil {
		writeFailure(w, r, err)
		return
	}
	scope := s.Scope()
	switch scope.Tier() {
	case access.TierClassSecretary:
		writeFailure(w, r, access.ErrForbidden)
		return
	case access.TierCongregationAdmin:
		if req.CongregationID != "" && req.CongregationID != scope.CongregationID {
			writeFailure(w, r, access.ErrForbidden)
			return
		}
		req.CongregationID = scope.CongregationID
	}

	delivered := a.hub.Publish(live.Invalidation{
		MinistryID:     scope.MinistryID,
		CongregationID: req.CongregationID,
		Collection:     req.Collection,
		Reason:         req.Reason,
	})
	_ = audit.LogEvent(r.Context(), "reference.invalidate", map[string]any{
		"congregation_id": req.CongregationID,
		"collection":      req.Collection,
		"delivered":       delivered,
	})
	writeJSON(w, http.StatusAccepted, map[string]any{"delivered": delivered})
}

func (a *API) Dashboard(w http.ResponseWriter, r *http.Request) {
	s, err := a.session(r)
	if err != nil {
		writeFailure(w, r, err)
		return
	}
	q := r.URL.Query()
	params := dashboardQuery{From: q.Get("from"), To: q.Get("to"), Metric: q.Get("metric"), Narrow: q.Get("narrow")}
	if err := a.validate.Struct(params); err != nil {
		writeFailure(w, r, errBadRequest(validationMessage(err)))
		return
	}
	rng, err := report.ParseRange(params.From, params.To)
	if err != nil {
		writeFailure(w, r, err)
		return
	}

	ctx, cancel := a.withFetchTimeout(r.Context())
	defer cancel()
	snap, err := s.Reference(ctx)
	if err != nil {
		writeFailure(w, r, err)
		return
	}
	view, err := a.dashboards.Build(ctx, s.Scope(), snap, dashboard.Request{
		Range:  rng,
		Metric: report.Metric(params.Metric),
		Narrow: params.Narrow,
	})
	if err != nil {
		writeFailure(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (a *API) OpenPresentation(w http.ResponseWriter, r *http.Request) {
	s, err := a.session(r)
	if err != nil {
		writeFailure(w, r, err)
		return
	}
	var req openPresentationRequest
	if err := a.decodeBody(r, &req); err != nil {
		writeFailure(w, r, err)
		return
	}
	date, err := time.Parse(report.DateLayout, req.Date)
	if err != nil {
		writeFailure(w, r, errBadRequest("date: "+err.Error()))
		return
	}
	ctx, cancel := a.withFetchTimeout(r.Context())
	defer cancel()
	view, err := s.OpenPresentation(ctx, date)
	if err != nil {
		writeFailure(w, r, err)
		return
	}
	w.Header().Set("Location", "/v1/presentations/"+view.ID)
	writeJSON(w, http.StatusCreated, view)
}

func (a *API) GetPresentation(w http.ResponseWriter, r *http.Request) {
	s, err := a.session(r)
	if err != nil {
		writeFailure(w, r, err)
		return
	}
	view, err := s.Presentation(r.PathValue("id"))
	if err != nil {
		writeFailure(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (a *API) ClosePresentation(w http.ResponseWriter, r *http.Request) {
	s, err := a.session(r)
	if err != nil {
		writeFailure(w, r, err)
		return
	}
	if err := s.ClosePresentation(r.Context(), r.PathValue("id")); err != nil {
		writeFailure(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// PresentationCommand applies one queue command. A rejected command answers
// 409 with the unchanged presentation so the client can re-render.
func (a *API) PresentationCommand(w http.ResponseWriter, r *http.Request) {
	s, err := a.session(r)
	if err != nil {
		writeFailure(w, r, err)
		return
	}
	cmd, err := a.parseCommand(r)
	if err != nil {
		writeFailure(w, r, err)
		return
	}
	view, err := s.Apply(r.Context(), r.PathValue("id"), cmd)
	if err != nil {
		if code := statusFor(err); code == http.StatusConflict && view.ID != "" {
			writeJSON(w, code, map[string]any{"error": err.Error(), "presentation": view})
			return
		}
		writeFailure(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (a *API) parseCommand(r *http.Request) (console.Command, error) {
	op := console.Op(r.PathValue("op"))
	cmd := console.Command{Op: op}
	switch op {
	case console.OpAdvance, console.OpRetreat:
		return cmd, nil
	case console.OpExclude, console.OpRestore, console.OpReorder, console.OpJump:
	default:
		return cmd, console.ErrUnknownCommand
	}

	var req commandRequest
	if err := a.decodeBody(r, &req); err != nil {
		return cmd, err
	}
	switch op {
	case console.OpExclude, console.OpRestore:
		if req.ItemID == "" {
			return cmd, errBadRequest("item_id is required")
		}
		cmd.ItemID = req.ItemID
	case console.OpReorder:
		if req.Order == nil {
			return cmd, errBadRequest("order is required")
		}
		cmd.Order = req.Order
	case console.OpJump:
		if req.Index == nil {
			return cmd, errBadRequest("index is required")
		}
		cmd.Index = *req.Index
	}
	return cmd, nil
}
