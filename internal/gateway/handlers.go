package gateway

import (
	"context"
	"time"

	"github.com/bytedance/sonic"
	"github.com/cloudwego/hertz/pkg/app"
	"github.com/cloudwego/hertz/pkg/protocol/consts"

	"github.com/abdatta/wappflow/internal/pkg/logs"
	"github.com/abdatta/wappflow/internal/scheduler"
)

type jobRequest struct {
	Kind             string `json:"kind"`
	ContactName      string `json:"contactName"`
	Message          string `json:"message"`
	AnchorTime       string `json:"anchorTime"`
	IntervalValue    int    `json:"intervalValue,omitempty"`
	IntervalUnit     string `json:"intervalUnit,omitempty"`
	ToleranceMinutes *int   `json:"toleranceMinutes,omitempty"`
}

type jobResponse struct {
	ID               string  `json:"id"`
	Kind             string  `json:"kind"`
	Status           string  `json:"status"`
	ContactName      string  `json:"contactName"`
	Message          string  `json:"message"`
	AnchorTime       string  `json:"anchorTime"`
	IntervalValue    int     `json:"intervalValue,omitempty"`
	IntervalUnit     string  `json:"intervalUnit,omitempty"`
	ToleranceMinutes *int    `json:"toleranceMinutes,omitempty"`
	NextRun          *string `json:"nextRun,omitempty"`
	LastRun          *string `json:"lastRun,omitempty"`
	CreatedAt        string  `json:"createdAt"`
}

func toJobResponse(j *scheduler.Job) jobResponse {
	resp := jobResponse{
		ID: j.ID, Kind: string(j.Kind), Status: string(j.Status),
		ContactName: j.ContactName, Message: j.Message,
		AnchorTime: j.AnchorTime.UTC().Format(time.RFC3339),
		IntervalValue: j.IntervalValue, IntervalUnit: string(j.IntervalUnit),
		ToleranceMinutes: j.ToleranceMinutes,
		CreatedAt:        j.CreatedAt.UTC().Format(time.RFC3339),
	}
	if j.NextRun != nil {
		s := j.NextRun.UTC().Format(time.RFC3339)
		resp.NextRun = &s
	}
	if j.LastRun != nil {
		s := j.LastRun.UTC().Format(time.RFC3339)
		resp.LastRun = &s
	}
	return resp
}

func errJSON(c *app.RequestContext, code int, kind, msg string) {
	c.JSON(code, map[string]string{"error": kind, "message": msg})
}

func (gw *Gateway) listJobs(ctx context.Context, c *app.RequestContext) {
	jobs, err := gw.store.List(ctx)
	if err != nil {
		logs.CtxWarn(ctx, "gateway: list jobs failed: %v", err)
		errJSON(c, consts.StatusInternalServerError, scheduler.ErrKind(err), err.Error())
		return
	}
	out := make([]jobResponse, 0, len(jobs))
	for _, j := range jobs {
		out = append(out, toJobResponse(j))
	}
	c.JSON(consts.StatusOK, out)
}

func (gw *Gateway) getJob(ctx context.Context, c *app.RequestContext) {
	id := c.Param("id")
	job, err := gw.store.Get(ctx, id)
	if err != nil {
		errJSON(c, consts.StatusNotFound, scheduler.ErrKind(err), err.Error())
		return
	}
	c.JSON(consts.StatusOK, toJobResponse(job))
}

func (gw *Gateway) createJob(ctx context.Context, c *app.RequestContext) {
	var req jobRequest
	if err := sonic.Unmarshal(c.GetRequest().Body(), &req); err != nil {
		errJSON(c, consts.StatusBadRequest, scheduler.ErrValidation.Kind(), "invalid request body")
		return
	}

	if req.Kind == "instant" {
		gw.sendInstantFromRequest(ctx, c, req)
		return
	}

	anchor, err := time.Parse(time.RFC3339, req.AnchorTime)
	if err != nil {
		errJSON(c, consts.StatusBadRequest, scheduler.ErrValidation.Kind(), "anchorTime must be RFC3339")
		return
	}

	job := &scheduler.Job{
		Kind:             scheduler.Kind(req.Kind),
		ContactName:      req.ContactName,
		Message:          req.Message,
		AnchorTime:       anchor.UTC(),
		IntervalValue:    req.IntervalValue,
		IntervalUnit:     scheduler.IntervalUnit(req.IntervalUnit),
		ToleranceMinutes: req.ToleranceMinutes,
	}
	if err := job.Validate(); err != nil {
		errJSON(c, consts.StatusBadRequest, scheduler.ErrKind(err), err.Error())
		return
	}

	if err := gw.store.Create(ctx, job); err != nil {
		logs.CtxWarn(ctx, "gateway: create job failed: %v", err)
		errJSON(c, consts.StatusInternalServerError, scheduler.ErrKind(err), err.Error())
		return
	}
	c.JSON(consts.StatusCreated, toJobResponse(job))
}

func (gw *Gateway) updateJob(ctx context.Context, c *app.RequestContext) {
	id := c.Param("id")
	existing, err := gw.store.Get(ctx, id)
	if err != nil {
		errJSON(c, consts.StatusNotFound, scheduler.ErrKind(err), err.Error())
		return
	}

	var req jobRequest
	if err := sonic.Unmarshal(c.GetRequest().Body(), &req); err != nil {
		errJSON(c, consts.StatusBadRequest, scheduler.ErrValidation.Kind(), "invalid request body")
		return
	}

	updated := *existing
	if req.Kind != "" {
		updated.Kind = scheduler.Kind(req.Kind)
	}
	if req.ContactName != "" {
		updated.ContactName = req.ContactName
	}
	if req.Message != "" {
		updated.Message = req.Message
	}
	if req.AnchorTime != "" {
		anchor, err := time.Parse(time.RFC3339, req.AnchorTime)
		if err != nil {
			errJSON(c, consts.StatusBadRequest, scheduler.ErrValidation.Kind(), "anchorTime must be RFC3339")
			return
		}
		updated.AnchorTime = anchor.UTC()
	}
	if req.IntervalValue != 0 {
		updated.IntervalValue = req.IntervalValue
	}
	if req.IntervalUnit != "" {
		updated.IntervalUnit = scheduler.IntervalUnit(req.IntervalUnit)
	}
	if req.ToleranceMinutes != nil {
		updated.ToleranceMinutes = req.ToleranceMinutes
	}

	if updated.Kind == scheduler.KindOnce {
		updated.IntervalValue = 0
		updated.IntervalUnit = ""
		updated.ToleranceMinutes = nil
		nr := updated.AnchorTime
		updated.NextRun = &nr
	} else if updated.Kind != existing.Kind || !updated.AnchorTime.Equal(existing.AnchorTime) ||
		updated.IntervalValue != existing.IntervalValue || updated.IntervalUnit != existing.IntervalUnit {
		nr := updated.AnchorTime
		updated.NextRun = &nr
	}

	if err := updated.Validate(); err != nil {
		errJSON(c, consts.StatusBadRequest, scheduler.ErrKind(err), err.Error())
		return
	}
	if err := gw.store.Update(ctx, &updated); err != nil {
		logs.CtxWarn(ctx, "gateway: update job failed: %v", err)
		errJSON(c, consts.StatusInternalServerError, scheduler.ErrKind(err), err.Error())
		return
	}
	c.JSON(consts.StatusOK, toJobResponse(&updated))
}

type setStatusRequest struct {
	Status string `json:"status"`
}

func (gw *Gateway) setJobStatus(ctx context.Context, c *app.RequestContext) {
	id := c.Param("id")
	var req setStatusRequest
	if err := sonic.Unmarshal(c.GetRequest().Body(), &req); err != nil {
		errJSON(c, consts.StatusBadRequest, scheduler.ErrValidation.Kind(), "invalid request body")
		return
	}

	job, err := gw.store.Get(ctx, id)
	if err != nil {
		errJSON(c, consts.StatusNotFound, scheduler.ErrKind(err), err.Error())
		return
	}

	switch scheduler.Status(req.Status) {
	case scheduler.StatusPaused:
		if err := gw.store.SetStatus(ctx, id, scheduler.StatusPaused, nil, job.LastRun); err != nil {
			errJSON(c, consts.StatusInternalServerError, scheduler.ErrKind(err), err.Error())
			return
		}
	case scheduler.StatusActive:
		next := scheduler.ResumeNextRun(job, time.Now().UTC())
		if err := gw.store.SetStatus(ctx, id, scheduler.StatusActive, &next, job.LastRun); err != nil {
			errJSON(c, consts.StatusInternalServerError, scheduler.ErrKind(err), err.Error())
			return
		}
	default:
		errJSON(c, consts.StatusBadRequest, scheduler.ErrValidation.Kind(), "status must be active or paused")
		return
	}
	c.JSON(consts.StatusOK, map[string]string{"status": req.Status})
}

func (gw *Gateway) deleteJob(ctx context.Context, c *app.RequestContext) {
	id := c.Param("id")
	if err := gw.store.Delete(ctx, id); err != nil {
		errJSON(c, consts.StatusNotFound, scheduler.ErrKind(err), err.Error())
		return
	}
	c.JSON(consts.StatusOK, map[string]bool{"ok": true})
}

func (gw *Gateway) listHistory(ctx context.Context, c *app.RequestContext) {
	jobID := c.Query("jobId")
	entries, err := gw.store.HistoryList(ctx, jobID, 0)
	if err != nil {
		errJSON(c, consts.StatusInternalServerError, scheduler.ErrKind(err), err.Error())
		return
	}
	c.JSON(consts.StatusOK, entries)
}

func (gw *Gateway) sendInstant(ctx context.Context, c *app.RequestContext) {
	var req jobRequest
	if err := sonic.Unmarshal(c.GetRequest().Body(), &req); err != nil {
		errJSON(c, consts.StatusBadRequest, scheduler.ErrValidation.Kind(), "invalid request body")
		return
	}
	gw.sendInstantFromRequest(ctx, c, req)
}

func (gw *Gateway) sendInstantFromRequest(ctx context.Context, c *app.RequestContext, req jobRequest) {
	if req.ContactName == "" || req.Message == "" {
		errJSON(c, consts.StatusBadRequest, scheduler.ErrValidation.Kind(), "contactName and message are required")
		return
	}
	if !gw.sender.IsReady(ctx) {
		errJSON(c, consts.StatusServiceUnavailable, scheduler.ErrNotReady.Kind(), scheduler.ErrNotReady.Error())
		return
	}

	hid, err := gw.store.HistoryAppend(ctx, &scheduler.HistoryEntry{
		Kind: "instant", ContactName: req.ContactName, Message: req.Message,
		Status: scheduler.HistorySending, Timestamp: time.Now().UTC(),
	})
	if err != nil {
		errJSON(c, consts.StatusInternalServerError, scheduler.ErrKind(err), err.Error())
		return
	}

	outcome, sendErr := gw.sender.Send(ctx, req.ContactName, req.Message)
	status, errMsg := instantOutcomeStatus(outcome, sendErr)
	if err := gw.store.HistoryUpdate(ctx, hid, status, errMsg); err != nil {
		logs.CtxWarn(ctx, "gateway: instant historyUpdate failed: %v", err)
	}
	gw.notifier.Notify(ctx, scheduler.NotifyEvent{
		ContactName: req.ContactName, Message: req.Message,
		Status: status, Timestamp: time.Now().UTC(), Error: errMsg,
	})

	c.JSON(consts.StatusOK, map[string]string{"status": string(status)})
}

func instantOutcomeStatus(outcome scheduler.SendOutcome, err error) (scheduler.HistoryStatus, string) {
	msg := ""
	if err != nil {
		msg = err.Error()
	}
	switch outcome {
	case scheduler.SendOK:
		return scheduler.HistorySent, ""
	case scheduler.SendFailed:
		return scheduler.HistoryFailed, msg
	default:
		return scheduler.HistoryUnknown, msg
	}
}
