package server

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/MarcoPoloResearchLab/agentstore/internal/auth"
	"github.com/MarcoPoloResearchLab/agentstore/internal/metrics"
	"github.com/MarcoPoloResearchLab/agentstore/internal/records"
	"github.com/MarcoPoloResearchLab/agentstore/internal/users"
	sqlite "github.com/glebarez/sqlite"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	testSigningSecret = "test-secret"
	testIssuer        = "agentstore"
	testCookieName    = "agentstore_session"
)

var testDatabaseSequence atomic.Int64

type testStack struct {
	handler   http.Handler
	issuer    *auth.TokenIssuer
	collector *metrics.Collector
	registry  *prometheus.Registry
}

type stackOptions struct {
	writesPerMinute int
	allowedOrigins  []string
}

func newTestStack(t *testing.T, options stackOptions) *testStack {
	t.Helper()
	gin.SetMode(gin.TestMode)

	dsn := fmt.Sprintf("file:server-test-%d?mode=memory&cache=shared", testDatabaseSequence.Add(1))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("failed to open sqlite: %v", err)
	}
	if err := db.AutoMigrate(&records.VoteRecord{}, &records.CommentRecord{}, &users.Profile{}); err != nil {
		t.Fatalf("failed to migrate schema: %v", err)
	}

	registry := prometheus.NewRegistry()
	collector := metrics.NewCollector(registry)
	gormStore, err := records.NewGormStore(records.GormStoreConfig{
		Database:   db,
		IDProvider: records.NewUUIDProvider(),
	})
	if err != nil {
		t.Fatalf("failed to create records store: %v", err)
	}
	validator, err := auth.NewSessionValidator(auth.SessionValidatorConfig{
		SigningSecret: []byte(testSigningSecret),
		Issuer:        testIssuer,
		CookieName:    testCookieName,
	})
	if err != nil {
		t.Fatalf("failed to create validator: %v", err)
	}
	issuer, err := auth.NewTokenIssuer(auth.TokenIssuerConfig{
		SigningSecret: []byte(testSigningSecret),
		Issuer:        testIssuer,
		TokenTTL:      time.Hour,
	})
	if err != nil {
		t.Fatalf("failed to create issuer: %v", err)
	}
	viewers, err := users.NewService(users.ServiceConfig{Database: db})
	if err != nil {
		t.Fatalf("failed to create viewer service: %v", err)
	}

	handler, err := NewHTTPHandler(Dependencies{
		Records:         records.Instrument(gormStore, collector),
		Sessions:        validator,
		Viewers:         viewers,
		Logger:          zap.NewNop(),
		Metrics:         collector,
		Gatherer:        registry,
		AllowedOrigins:  options.allowedOrigins,
		WritesPerMinute: options.writesPerMinute,
	})
	if err != nil {
		t.Fatalf("failed to build handler: %v", err)
	}
	return &testStack{handler: handler, issuer: issuer, collector: collector, registry: registry}
}

func (s *testStack) token(t *testing.T, userID, displayName string) string {
	t.Helper()
	token, _, err := s.issuer.Issue(auth.Principal{UserID: userID, DisplayName: displayName})
	if err != nil {
		t.Fatalf("failed to issue token: %v", err)
	}
	return token
}

func (s *testStack) do(t *testing.T, method, target, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("failed to encode body: %v", err)
		}
		reader = bytes.NewReader(encoded)
	} else {
		reader = bytes.NewReader(nil)
	}
	request := httptest.NewRequest(method, target, reader)
	if body != nil {
		request.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		request.Header.Set("Authorization", "Bearer "+token)
	}
	recorder := httptest.NewRecorder()
	s.handler.ServeHTTP(recorder, request)
	return recorder
}

func decodeBody(t *testing.T, recorder *httptest.ResponseRecorder, target any) {
	t.Helper()
	if err := json.Unmarshal(recorder.Body.Bytes(), target); err != nil {
		t.Fatalf("failed to decode response %q: %v", recorder.Body.String(), err)
	}
}
