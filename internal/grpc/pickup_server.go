package grpcserver

import (
	"context"
	"encoding/base64"
	"fmt"
	"strconv"
	"strings"

	"github.com/sirupsen/logrus"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"ewastePickup/internal/aggregate"
	"ewastePickup/internal/auth"
	"ewastePickup/internal/lifecycle"
	"ewastePickup/internal/report"
	"ewastePickup/models"
)

const (
	maxPageSize     = 100 // Maximum allowed page size for list operations.
	defaultPageSize = 20  // Default page size for list operations.
)

// PickupServer implements PickupService on top of the lifecycle engine.
type PickupServer struct {
	Engine     *lifecycle.Engine
	Aggregates *aggregate.Service
	Log        logrus.FieldLogger
}

var _ PickupServiceServer = (*PickupServer)(nil)

func requestReply(r *models.PickupRequest) (*structpb.Struct, error) {
	return toStruct(map[string]any{"request": r})
}

// CreateRequest submits a request owned by the caller. The body is the payload itself.
func (s *PickupServer) CreateRequest(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	p, err := auth.RequirePrincipal(ctx)
	if err != nil {
		return nil, toStatus(err)
	}
	var payload models.Payload
	if err := fromStruct(in, &payload); err != nil {
		return nil, err
	}
	r, err := s.Engine.Create(ctx, payload, p)
	if err != nil {
		return nil, toStatus(err)
	}
	return requestReply(r)
}

func (s *PickupServer) GetRequest(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	p, err := auth.RequirePrincipal(ctx)
	if err != nil {
		return nil, toStatus(err)
	}
	var req idRequest
	if err := fromStruct(in, &req); err != nil {
		return nil, err
	}
	if err := req.validate(); err != nil {
		return nil, err
	}
	r, err := s.Engine.Get(ctx, req.ID, p)
	if err != nil {
		return nil, toStatus(err)
	}
	rating, err := s.Engine.Rating(ctx, req.ID, p)
	if err != nil {
		return nil, toStatus(err)
	}
	return toStruct(map[string]any{"request": r, "rating": rating})
}

type listRequest struct {
	PageSize  int    `json:"page_size"`
	PageToken string `json:"page_token"`
}

// ListRequests returns the caller's scoped requests, newest first, in pages.
func (s *PickupServer) ListRequests(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	p, err := auth.RequirePrincipal(ctx)
	if err != nil {
		return nil, toStatus(err)
	}
	var req listRequest
	if err := fromStruct(in, &req); err != nil {
		return nil, err
	}

	// Extract and validate pagination parameters.
	pageSize := defaultPageSize
	if req.PageSize > 0 {
		pageSize = req.PageSize
	}
	if pageSize > maxPageSize {
		pageSize = maxPageSize
	}
	var afterID int64
	if req.PageToken != "" {
		if afterID, err = decodeCursor(req.PageToken); err != nil {
			return nil, status.Errorf(codes.InvalidArgument, "invalid page_token: %v", err)
		}
	}

	all, err := s.Engine.List(ctx, p)
	if err != nil {
		return nil, toStatus(err)
	}
	// Newest first, so the next page continues below the last id seen.
	page := make([]models.PickupRequest, 0, pageSize)
	for _, r := range all {
		if afterID > 0 && r.ID >= afterID {
			continue
		}
		page = append(page, r)
		if len(page) == pageSize {
			break
		}
	}

	nextToken := ""
	if len(page) == pageSize && page[len(page)-1].ID > all[len(all)-1].ID {
		nextToken = encodeCursor(page[len(page)-1].ID)
	}
	return toStruct(map[string]any{"requests": page, "next_page_token": nextToken})
}

type editRequest struct {
	idRequest
	models.PayloadPatch
}

func (s *PickupServer) EditRequest(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	p, err := auth.RequirePrincipal(ctx)
	if err != nil {
		return nil, toStatus(err)
	}
	var req editRequest
	if err := fromStruct(in, &req); err != nil {
		return nil, err
	}
	if err := req.validate(); err != nil {
		return nil, err
	}
	r, err := s.Engine.Edit(ctx, req.ID, req.PayloadPatch, p)
	if err != nil {
		return nil, toStatus(err)
	}
	return requestReply(r)
}

type assignRequest struct {
	idRequest
	CollectorID int64 `json:"collector_id"`
}

func (s *PickupServer) AssignCollector(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	p, err := auth.RequirePrincipal(ctx)
	if err != nil {
		return nil, toStatus(err)
	}
	var req assignRequest
	if err := fromStruct(in, &req); err != nil {
		return nil, err
	}
	if err := req.validate(); err != nil {
		return nil, err
	}
	r, err := s.Engine.Assign(ctx, req.ID, req.CollectorID, p)
	if err != nil {
		return nil, toStatus(err)
	}
	return requestReply(r)
}

type statusRequest struct {
	idRequest
	Status string `json:"status"`
}

func (s *PickupServer) SetStatus(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	p, err := auth.RequirePrincipal(ctx)
	if err != nil {
		return nil, toStatus(err)
	}
	var req statusRequest
	if err := fromStruct(in, &req); err != nil {
		return nil, err
	}
	if err := req.validate(); err != nil {
		return nil, err
	}
	target := models.RequestStatus(strings.ToLower(strings.TrimSpace(req.Status)))
	r, err := s.Engine.SetStatus(ctx, req.ID, target, p)
	if err != nil {
		return nil, toStatus(err)
	}
	return requestReply(r)
}

func (s *PickupServer) CancelRequest(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	p, err := auth.RequirePrincipal(ctx)
	if err != nil {
		return nil, toStatus(err)
	}
	var req idRequest
	if err := fromStruct(in, &req); err != nil {
		return nil, err
	}
	if err := req.validate(); err != nil {
		return nil, err
	}
	r, err := s.Engine.Cancel(ctx, req.ID, p)
	if err != nil {
		return nil, toStatus(err)
	}
	return requestReply(r)
}

type rateRequest struct {
	idRequest
	Rating  int    `json:"rating"`
	Comment string `json:"comment"`
}

func (s *PickupServer) RateRequest(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	p, err := auth.RequirePrincipal(ctx)
	if err != nil {
		return nil, toStatus(err)
	}
	var req rateRequest
	if err := fromStruct(in, &req); err != nil {
		return nil, err
	}
	if err := req.validate(); err != nil {
		return nil, err
	}
	rt, err := s.Engine.Rate(ctx, req.ID, req.Rating, req.Comment, p)
	if err != nil {
		return nil, toStatus(err)
	}
	return toStruct(map[string]any{"rating": rt})
}

func (s *PickupServer) DashboardStats(ctx context.Context, _ *structpb.Struct) (*structpb.Struct, error) {
	if _, err := auth.RequireAdmin(ctx); err != nil {
		return nil, toStatus(err)
	}
	st, err := s.Aggregates.DashboardStats(ctx)
	if err != nil {
		return nil, toStatus(err)
	}
	return toStruct(st)
}

type reportRequest struct {
	Month string `json:"month"`
}

// MonthlyReport streams one {"request": ...} message per row, then a final {"summary": ...}.
func (s *PickupServer) MonthlyReport(in *structpb.Struct, stream grpc.ServerStreamingServer[structpb.Struct]) error {
	ctx := stream.Context()
	if _, err := auth.RequireAdmin(ctx); err != nil {
		return toStatus(err)
	}
	var req reportRequest
	if err := fromStruct(in, &req); err != nil {
		return err
	}
	rows, err := s.Aggregates.MonthlyReport(ctx, req.Month)
	if err != nil {
		return toStatus(err)
	}
	acc := report.NewAccumulator()
	for r, err := range rows {
		if err != nil {
			return toStatus(err)
		}
		msg, err := requestReply(&r)
		if err != nil {
			return err
		}
		if err := stream.Send(msg); err != nil {
			return err
		}
		acc.Add(&r)
	}
	summary := acc.Summary()
	msg, err := toStruct(map[string]any{"summary": summary})
	if err != nil {
		return err
	}
	if s.Log != nil {
		s.Log.WithFields(logrus.Fields{"month": req.Month, "rows": summary.TotalPickups}).Info("monthly report streamed")
	}
	return stream.Send(msg)
}

// encodeCursor builds an opaque next_page_token from the last request id seen.
func encodeCursor(id int64) string {
	return base64.RawURLEncoding.EncodeToString([]byte(strconv.FormatInt(id, 10)))
}

// decodeCursor parses an opaque page_token back into a request id.
func decodeCursor(token string) (int64, error) {
	b, err := base64.RawURLEncoding.DecodeString(token)
	if err != nil {
		return 0, fmt.Errorf("base64: %w", err)
	}
	id, err := strconv.ParseInt(string(b), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("parse id: %w", err)
	}
	if id <= 0 {
		return 0, fmt.Errorf("invalid id")
	}
	return id, nil
}
