package remote

import (
	"context"
	"errors"
	"net"
	"sync"
	"testing"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"
	"google.golang.org/protobuf/types/known/structpb"

	"ebdconsole.org/internal/access"
	"ebdconsole.org/internal/audit"
	"ebdconsole.org/internal/report"
	"ebdconsole.org/internal/series"
)

type aggregationServer interface {
	GetReport(context.Context, *structpb.Struct) (*structpb.Struct, error)
	GetDashboard(context.Context, *structpb.Struct) (*structpb.Struct, error)
}

type fakeBackend struct {
	mu       sync.Mutex
	lastReq  map[string]any
	lastMD   metadata.MD
	report   map[string]any
	failWith error
}

func (f *fakeBackend) record(ctx context.Context, in *structpb.Struct) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lastReq = in.AsMap()
	f.lastMD, _ = metadata.FromIncomingContext(ctx)
}

func (f *fakeBackend) GetReport(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	f.record(ctx, in)
	if f.failWith != nil {
		return nil, f.failWith
	}
	return structpb.NewStruct(f.report)
}

func (f *fakeBackend) GetDashboard(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	f.record(ctx, in)
	if f.failWith != nil {
		return nil, f.failWith
	}
	return structpb.NewStruct(map[string]any{
		"totalsByMetric": []any{
			map[string]any{"bucketLabel": "Jan", "a": 10, "b": 5},
			map[string]any{"bucketLabel": "Feb", "a": 0, "b": 7, "note": "ignored"},
		},
		"membershipRatios": map[string]any{
			"a": map[string]any{"members": 40, "enrolled": 10},
		},
	})
}

func unary(call func(aggregationServer, context.Context, *structpb.Struct) (*structpb.Struct, error)) grpc.MethodHandler {
	return func(srv any, ctx context.Context, dec func(any) error, _ grpc.UnaryServerInterceptor) (any, error) {
		in := new(structpb.Struct)
		if err := dec(in); err != nil {
			return nil, err
		}
		return call(srv.(aggregationServer), ctx, in)
	}
}

var aggregationDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*aggregationServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "GetReport", Handler: unary(aggregationServer.GetReport)},
		{MethodName: "GetDashboard", Handler: unary(aggregationServer.GetDashboard)},
	},
}

func startBackend(t *testing.T, backend *fakeBackend) *Service {
	t.Helper()
	lis := bufconn.Listen(1 << 20)
	srv := grpc.NewServer()
	srv.RegisterService(&aggregationDesc, backend)
	go func() { _ = srv.Serve(lis) }()
	t.Cleanup(srv.Stop)

	client, err := Dial("passthrough:///bufnet", 2*time.Second,
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) { return lis.DialContext(ctx) }),
	)
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	t.Cleanup(func() { _ = client.Close() })
	return NewService(client)
}

func callerContext() context.Context {
	ctx := audit.WithRequestID(context.Background(), "req-7")
	return access.ContextWithIdentity(ctx, access.Identity{ID: "u1", Role: "secretario_classe", MinistryID: "m1", CongregationID: "c1", ClassID: "k1"})
}

func TestGetReportSendsScopeAndIdentity(t *testing.T) {
	backend := &fakeBackend{report: map[string]any{
		"date": "2026-03-01",
		"classes": []any{
			map[string]any{"classId": "k1", "className": "Adultos", "congregationId": "c1", "enrolled": 12, "present": 9, "offering": 20.5},
		},
		"birthdays": []any{
			map[string]any{"name": "Ana", "classId": "k1", "congregationId": "c1", "date": "2026-03-03"},
		},
	}}
	svc := startBackend(t, backend)

	scope := access.Scope{MinistryID: "m1", CongregationID: "c1", ClassID: "k1"}
	got, err := svc.GetReport(callerContext(), scope, report.Day(time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)))
	if err != nil {
		t.Fatalf("GetReport: %v", err)
	}
	if len(got.Classes) != 1 || got.Classes[0].Present != 9 || got.Classes[0].Offering != 20.5 {
		t.Fatalf("unexpected classes: %+v", got.Classes)
	}
	if got.Totals != nil {
		t.Fatalf("backend omitted totals, got %+v", got.Totals)
	}
	if len(got.Birthdays) != 1 || got.Birthdays[0].Date.Day() != 3 {
		t.Fatalf("unexpected birthdays: %+v", got.Birthdays)
	}

	backend.mu.Lock()
	defer backend.mu.Unlock()
	if backend.lastReq["classId"] != "k1" || backend.lastReq["from"] != "2026-03-01" || backend.lastReq["to"] != "2026-03-01" {
		t.Fatalf("scope not forwarded: %v", backend.lastReq)
	}
	if ids := backend.lastMD.Get(MDIdentity); len(ids) != 1 || ids[0] != "u1" {
		t.Fatalf("identity metadata missing: %v", backend.lastMD)
	}
	if rids := backend.lastMD.Get(MDRequestID); len(rids) != 1 || rids[0] != "req-7" {
		t.Fatalf("request id metadata missing: %v", backend.lastMD)
	}
}

func TestGetDashboardDecodesSparseRows(t *testing.T) {
	svc := startBackend(t, &fakeBackend{})
	r, _ := report.ParseRange("2026-01-01", "2026-02-28")
	got, err := svc.GetDashboard(callerContext(), access.Scope{MinistryID: "m1"}, report.DashboardQuery{Range: r, Metric: report.MetricPresent})
	if err != nil {
		t.Fatalf("GetDashboard: %v", err)
	}
	if len(got.TotalsByMetric) != 2 || got.TotalsByMetric[1].Bucket != "Feb" {
		t.Fatalf("unexpected rows: %+v", got.TotalsByMetric)
	}
	if series.Sum(got.TotalsByMetric) != 22 {
		t.Fatalf("sum=%v, want 22", series.Sum(got.TotalsByMetric))
	}
	if _, ok := got.TotalsByMetric[1].Values["note"]; ok {
		t.Fatal("non-numeric field should be ignored")
	}
	if got.MembershipRatios["a"].Ratio() != 0.25 {
		t.Fatalf("unexpected ratio: %+v", got.MembershipRatios)
	}
}

func TestBackendFailureIsTransient(t *testing.T) {
	svc := startBackend(t, &fakeBackend{failWith: status.Error(codes.Unavailable, "backend down")})
	_, err := svc.GetReport(callerContext(), access.Scope{MinistryID: "m1"}, report.Day(time.Now()))
	if !errors.Is(err, report.ErrTransientFetch) {
		t.Fatalf("expected ErrTransientFetch, got %v", err)
	}
	var fe *report.FetchError
	if !errors.As(err, &fe) || fe.Message() == "" {
		t.Fatalf("expected FetchError with message, got %v", err)
	}
}

func TestRequestRefusesInvalidInput(t *testing.T) {
	svc := NewService(&Client{})
	if _, err := svc.GetReport(context.Background(), access.Scope{}, report.Day(time.Now())); !errors.Is(err, access.ErrIncompleteIdentity) {
		t.Fatalf("expected ErrIncompleteIdentity, got %v", err)
	}
	q := report.DashboardQuery{Range: report.Day(time.Now()), Metric: "bogus"}
	if _, err := svc.GetDashboard(context.Background(), access.Scope{MinistryID: "m1"}, q); !errors.Is(err, report.ErrInvalidMetric) {
		t.Fatalf("expected ErrInvalidMetric, got %v", err)
	}
}

func TestMapError(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name string
		err  error
		want error
	}{
		{name: "not found", err: status.Error(codes.NotFound, "no report"), want: report.ErrReportNotFound},
		{name: "invalid argument", err: status.Error(codes.InvalidArgument, "bad range"), want: report.ErrTransientFetch},
		{name: "deadline", err: status.Error(codes.DeadlineExceeded, "slow"), want: report.ErrTransientFetch},
		{name: "plain", err: errors.New("boom"), want: report.ErrTransientFetch},
	}
	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			if got := mapError("report", tc.err); !errors.Is(got, tc.want) {
				t.Fatalf("mapError() = %v, want %v", got, tc.want)
			}
		})
	}
}
