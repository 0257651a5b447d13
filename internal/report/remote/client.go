// Package remote talks to the aggregation backend over gRPC. Messages are
// google.protobuf.Struct documents so the console does not depend on the
// backend's generated stubs.
package remote

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/goccy/go-json"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/types/known/structpb"

	"ebdconsole.org/internal/access"
	"ebdconsole.org/internal/audit"
	"ebdconsole.org/internal/obs"
	"ebdconsole.org/internal/report"
	"ebdconsole.org/internal/series"
)

const (
	ServiceName        = "ebd.aggregation.v1.AggregationService"
	MethodGetReport    = "/" + ServiceName + "/GetReport"
	MethodGetDashboard = "/" + ServiceName + "/GetDashboard"
)

// Metadata keys sent with every call.
const (
	MDIdentity  = "x-ebd-identity-id"
	MDRole      = "x-ebd-role"
	MDRequestID = "x-request-id"
)

// Client wraps the gRPC connection.
type Client struct {
	conn    *grpc.ClientConn
	timeout time.Duration
}

// Dial creates a client. Without options the transport is insecure.
func Dial(target string, timeout time.Duration, opts ...grpc.DialOption) (*Client, error) {
	if len(opts) == 0 {
		opts = append(opts, grpc.WithTransportCredentials(insecure.NewCredentials()))
	}
	conn, err := grpc.NewClient(target, opts...)
	if err != nil {
		return nil, err
	}
	return &Client{conn: conn, timeout: timeout}, nil
}

// Close closes the underlying connection.
func (c *Client) Close() error {
	if c == nil || c.conn == nil {
		return nil
	}
	return c.conn.Close()
}

// Service adapts the client to report.Service.
type Service struct {
	client *Client
}

var _ report.Service = (*Service)(nil)

func NewService(client *Client) *Service { return &Service{client: client} }

func (s *Service) GetReport(ctx context.Context, scope access.Scope, r report.DateRange) (report.Payload, error) {
	req, err := request(scope, r, "")
	if err != nil {
		return report.Payload{}, err
	}
	var resp structpb.Struct
	if err := s.invoke(ctx, MethodGetReport, "report", req, &resp); err != nil {
		return report.Payload{}, err
	}
	var wire wireReport
	if err := decode(&resp, &wire); err != nil {
		return report.Payload{}, &report.FetchError{Method: "report", Err: err}
	}
	return wire.payload()
}

func (s *Service) GetDashboard(ctx context.Context, scope access.Scope, q report.DashboardQuery) (report.Dashboard, error) {
	if !q.Metric.Valid() {
		return report.Dashboard{}, fmt.Errorf("%w: %q", report.ErrInvalidMetric, q.Metric)
	}
	req, err := request(scope, q.Range, q.Metric)
	if err != nil {
		return report.Dashboard{}, err
	}
	var resp structpb.Struct
	if err := s.invoke(ctx, MethodGetDashboard, "dashboard", req, &resp); err != nil {
		return report.Dashboard{}, err
	}
	var wire struct {
		TotalsByMetric   []series.MetricRow            `json:"totalsByMetric"`
		MembershipRatios map[string]report.RatioRecord `json:"membershipRatios"`
	}
	if err := decode(&resp, &wire); err != nil {
		return report.Dashboard{}, &report.FetchError{Method: "dashboard", Err: err}
	}
	if wire.MembershipRatios == nil {
		wire.MembershipRatios = map[string]report.RatioRecord{}
	}
	return report.Dashboard{TotalsByMetric: wire.TotalsByMetric, MembershipRatios: wire.MembershipRatios}, nil
}

func (s *Service) invoke(ctx context.Context, method, label string, req *structpb.Struct, resp *structpb.Struct) error {
	if s.client.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.client.timeout)
		defer cancel()
	}
	start := time.Now()
	err := s.client.conn.Invoke(outgoingWithIdentity(ctx), method, req, resp)
	outcome := "ok"
	if err != nil {
		outcome = status.Code(err).String()
	}
	obs.ObserveAggregationCall(label, outcome, time.Since(start))
	if err != nil {
		obs.Warn("aggregation call failed", map[string]any{
			"method":     label,
			"code":       outcome,
			"request_id": audit.RequestID(ctx),
		})
		return mapError(label, err)
	}
	return nil
}

// Helpers -----------------------------------------------------------------

func request(scope access.Scope, r report.DateRange, metric report.Metric) (*structpb.Struct, error) {
	if !scope.Valid() {
		return nil, fmt.Errorf("%w: scope %s", access.ErrIncompleteIdentity, scope)
	}
	if err := r.Validate(); err != nil {
		return nil, err
	}
	fields := map[string]any{
		"ministryId": scope.MinistryID,
		"from":       r.From.Format(report.DateLayout),
		"to":         r.To.Format(report.DateLayout),
	}
	if scope.CongregationID != "" {
		fields["congregationId"] = scope.CongregationID
	}
	if scope.ClassID != "" {
		fields["classId"] = scope.ClassID
	}
	if metric != "" {
		fields["metric"] = string(metric)
	}
	return structpb.NewStruct(fields)
}

func decode(msg *structpb.Struct, dst any) error {
	raw, err := protojson.Marshal(msg)
	if err != nil {
		return err
	}
	return json.Unmarshal(raw, dst)
}

func outgoingWithIdentity(ctx context.Context) context.Context {
	var pairs []string
	if identity, ok := access.IdentityFromContext(ctx); ok {
		pairs = append(pairs, MDIdentity, identity.ID, MDRole, identity.Role)
	}
	if rid := audit.RequestID(ctx); rid != "" {
		pairs = append(pairs, MDRequestID, rid)
	}
	if len(pairs) == 0 {
		return ctx
	}
	return metadata.AppendToOutgoingContext(ctx, pairs...)
}

func mapError(method string, err error) error {
	if err == nil {
		return nil
	}
	st, ok := status.FromError(err)
	if ok && st.Code() == codes.NotFound {
		return fmt.Errorf("%w: %s", report.ErrReportNotFound, st.Message())
	}
	if ok && st.Code() == codes.InvalidArgument {
		return &report.FetchError{Method: method, Err: errors.New(st.Message())}
	}
	if ok {
		return &report.FetchError{Method: method, Err: fmt.Errorf("%s: %s", st.Code(), st.Message())}
	}
	return &report.FetchError{Method: method, Err: err}
}

type wireBirthday struct {
	Name           string `json:"name"`
	ClassID        string `json:"classId"`
	CongregationID string `json:"congregationId"`
	Date           string `json:"date"`
}

type wireReport struct {
	Date      string               `json:"date"`
	Classes   []report.ClassTotals `json:"classes"`
	Totals    *report.GrandTotals  `json:"totals"`
	Birthdays []wireBirthday       `json:"birthdays"`
}

func (w wireReport) payload() (report.Payload, error) {
	date, err := time.Parse(report.DateLayout, w.Date)
	if err != nil {
		return report.Payload{}, &report.FetchError{Method: "report", Err: fmt.Errorf("bad date %q", w.Date)}
	}
	p := report.Payload{Date: date, Classes: w.Classes, Totals: w.Totals}
	for _, b := range w.Birthdays {
		day, err := time.Parse(report.DateLayout, b.Date)
		if err != nil {
			continue
		}
		p.Birthdays = append(p.Birthdays, report.Birthday{
			Name:           b.Name,
			ClassID:        b.ClassID,
			CongregationID: b.CongregationID,
			Date:           day,
		})
	}
	return p, nil
}
