package controllers

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/avtovin/avtovin-backend/api/middleware"
	"github.com/avtovin/avtovin-backend/internal/visits"
	"github.com/avtovin/avtovin-backend/pkg/db/models"
	"github.com/avtovin/avtovin-backend/pkg/enums"
	pkgerrors "github.com/avtovin/avtovin-backend/pkg/errors"
	"github.com/avtovin/avtovin-backend/pkg/logger"
	"github.com/avtovin/avtovin-backend/pkg/pagination"
)

type testVisitService struct {
	recordFn  func(ctx context.Context, input visits.RecordVisitInput) (*models.Visit, error)
	getFn     func(ctx context.Context, id uuid.UUID) (*models.Visit, error)
	listFn    func(ctx context.Context, filter visits.ListFilter, page pagination.Page) ([]models.Visit, int64, error)
	partnerFn func(ctx context.Context, managerID uuid.UUID) (*models.Partner, error)
}

func (s *testVisitService) RecordVisit(ctx context.Context, input visits.RecordVisitInput) (*models.Visit, error) {
	if s.recordFn != nil {
		return s.recordFn(ctx, input)
	}
	return &models.Visit{ID: uuid.New()}, nil
}

func (s *testVisitService) GetVisit(ctx context.Context, id uuid.UUID) (*models.Visit, error) {
	if s.getFn != nil {
		return s.getFn(ctx, id)
	}
	return nil, pkgerrors.New(pkgerrors.CodeNotFound, "visit not found")
}

func (s *testVisitService) ListVisits(ctx context.Context, filter visits.ListFilter, page pagination.Page) ([]models.Visit, int64, error) {
	if s.listFn != nil {
		return s.listFn(ctx, filter, page)
	}
	return []models.Visit{}, 0, nil
}

func (s *testVisitService) PartnerForManager(ctx context.Context, managerID uuid.UUID) (*models.Partner, error) {
	if s.partnerFn != nil {
		return s.partnerFn(ctx, managerID)
	}
	return &models.Partner{ID: uuid.New()}, nil
}

func testLogger() *logger.Logger {
	return logger.New(logger.Options{ServiceName: "test", Output: io.Discard})
}

func withActor(r *http.Request, userID uuid.UUID, role enums.Role) *http.Request {
	ctx := middleware.WithUserID(r.Context(), userID.String())
	ctx = middleware.WithRole(ctx, string(role))
	return r.WithContext(ctx)
}

func addRouteParam(r *http.Request, key, value string) *http.Request {
	routeCtx := chi.NewRouteContext()
	routeCtx.URLParams.Add(key, value)
	return r.WithContext(context.WithValue(r.Context(), chi.RouteCtxKey, routeCtx))
}

func TestRecordVisitMapsRequest(t *testing.T) {
	actorID := uuid.New()
	carID := uuid.New()
	serviceID := uuid.New()
	var captured visits.RecordVisitInput
	svc := &testVisitService{
		recordFn: func(ctx context.Context, input visits.RecordVisitInput) (*models.Visit, error) {
			captured = input
			return &models.Visit{ID: uuid.New(), CarID: input.CarID, Cost: 13000}, nil
		},
	}

	body := `{"car_id":"` + carID.String() + `","cashback_used":500,"services":[{"service_id":"` + serviceID.String() + `","price":8000}]}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/visits", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req = withActor(req, actorID, enums.RolePartnerManager)

	resp := httptest.NewRecorder()
	RecordVisit(svc, testLogger())(resp, req)

	if resp.Code != http.StatusCreated {
		t.Fatalf("expected 201 got %d: %s", resp.Code, resp.Body.String())
	}
	if captured.ActorUserID != actorID {
		t.Fatalf("expected actor %s got %s", actorID, captured.ActorUserID)
	}
	if captured.CarID != carID {
		t.Fatalf("expected car %s got %s", carID, captured.CarID)
	}
	if captured.CashbackUsed != 500 {
		t.Fatalf("expected cashback_used 500 got %d", captured.CashbackUsed)
	}
	if len(captured.Services) != 1 || captured.Services[0].ServiceID != serviceID || captured.Services[0].Price != 8000 {
		t.Fatalf("unexpected service lines %+v", captured.Services)
	}
}

func TestRecordVisitRejectsBadBody(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/api/v1/visits", strings.NewReader(`{"car_id":`))
	req.Header.Set("Content-Type", "application/json")
	req = withActor(req, uuid.New(), enums.RoleAdmin)

	resp := httptest.NewRecorder()
	RecordVisit(&testVisitService{}, testLogger())(resp, req)

	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 got %d", resp.Code)
	}
}

func TestRecordVisitRejectsMissingCar(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/api/v1/visits", strings.NewReader(`{"cashback_used":0}`))
	req.Header.Set("Content-Type", "application/json")
	req = withActor(req, uuid.New(), enums.RoleAdmin)

	resp := httptest.NewRecorder()
	RecordVisit(&testVisitService{}, testLogger())(resp, req)

	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 got %d", resp.Code)
	}
}

func TestRecordVisitRequiresActorContext(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/api/v1/visits", strings.NewReader(`{}`))
	resp := httptest.NewRecorder()
	RecordVisit(&testVisitService{}, testLogger())(resp, req)

	if resp.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 got %d", resp.Code)
	}
}

func TestGetVisitHidesForeignVisitFromUser(t *testing.T) {
	visitID := uuid.New()
	svc := &testVisitService{
		getFn: func(ctx context.Context, id uuid.UUID) (*models.Visit, error) {
			return &models.Visit{ID: id, Car: &models.Car{UserID: uuid.New()}}, nil
		},
	}

	req := httptest.NewRequest(http.MethodGet, "/api/v1/visits/"+visitID.String(), nil)
	req = withActor(req, uuid.New(), enums.RoleUser)
	req = addRouteParam(req, "id", visitID.String())

	resp := httptest.NewRecorder()
	GetVisit(svc, testLogger())(resp, req)

	if resp.Code != http.StatusForbidden {
		t.Fatalf("expected 403 got %d", resp.Code)
	}
}

func TestGetVisitAllowsOwner(t *testing.T) {
	visitID := uuid.New()
	ownerID := uuid.New()
	svc := &testVisitService{
		getFn: func(ctx context.Context, id uuid.UUID) (*models.Visit, error) {
			return &models.Visit{ID: id, Car: &models.Car{UserID: ownerID}}, nil
		},
	}

	req := httptest.NewRequest(http.MethodGet, "/api/v1/visits/"+visitID.String(), nil)
	req = withActor(req, ownerID, enums.RoleUser)
	req = addRouteParam(req, "id", visitID.String())

	resp := httptest.NewRecorder()
	GetVisit(svc, testLogger())(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", resp.Code)
	}
	var envelope struct {
		Data visitResponse `json:"data"`
	}
	if err := json.Unmarshal(resp.Body.Bytes(), &envelope); err != nil {
		t.Fatalf("unmarshal response: %v", err)
	}
	if envelope.Data.ID != visitID {
		t.Fatalf("expected visit %s got %s", visitID, envelope.Data.ID)
	}
}

func TestListVisitsScopesManagerToOwnPartner(t *testing.T) {
	managerID := uuid.New()
	partnerID := uuid.New()
	var captured visits.ListFilter
	svc := &testVisitService{
		partnerFn: func(ctx context.Context, id uuid.UUID) (*models.Partner, error) {
			if id != managerID {
				t.Fatalf("expected manager %s got %s", managerID, id)
			}
			return &models.Partner{ID: partnerID}, nil
		},
		listFn: func(ctx context.Context, filter visits.ListFilter, page pagination.Page) ([]models.Visit, int64, error) {
			captured = filter
			return []models.Visit{}, 0, nil
		},
	}

	req := httptest.NewRequest(http.MethodGet, "/api/v1/visits", nil)
	req = withActor(req, managerID, enums.RolePartnerManager)

	resp := httptest.NewRecorder()
	ListVisits(svc, testLogger())(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", resp.Code)
	}
	if captured.PartnerID == nil || *captured.PartnerID != partnerID {
		t.Fatalf("expected filter scoped to partner %s, got %+v", partnerID, captured)
	}
}

func TestListVisitsScopesUserToOwnCars(t *testing.T) {
	userID := uuid.New()
	var captured visits.ListFilter
	svc := &testVisitService{
		listFn: func(ctx context.Context, filter visits.ListFilter, page pagination.Page) ([]models.Visit, int64, error) {
			captured = filter
			return []models.Visit{}, 0, nil
		},
	}

	req := httptest.NewRequest(http.MethodGet, "/api/v1/visits?car_id="+uuid.NewString(), nil)
	req = withActor(req, userID, enums.RoleUser)

	resp := httptest.NewRecorder()
	ListVisits(svc, testLogger())(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", resp.Code)
	}
	if captured.UserID == nil || *captured.UserID != userID {
		t.Fatalf("expected filter scoped to user %s, got %+v", userID, captured)
	}
	if captured.CarID == nil {
		t.Fatal("expected car filter to pass through")
	}
}
