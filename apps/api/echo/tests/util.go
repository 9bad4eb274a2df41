package tests

import (
	"bytes"
	"context"
	"encoding/json"
	"log"
	"net/http"
	"net/http/httptest"
	"os"
	"reflect"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	. "github.com/chibale/darasa/apps/api/echo"
	"github.com/chibale/darasa/core/course"
	"github.com/chibale/darasa/core/enrollment"
	"github.com/chibale/darasa/core/user"
	emailsvc "github.com/chibale/darasa/services/email"
	logsvc "github.com/chibale/darasa/services/logger"
	dummydb "github.com/chibale/darasa/storage/database/dummy"
)

var errMissingToken = httpErr{Error: "missing or malformed jwt"}

type catalogStore interface {
	course.Catalog
	CreateCourse(ctx context.Context, crs course.Course) (course.Course, error)
}

type testApp struct {
	app     Server
	usrRepo user.Repository
	enrRepo enrollment.Repository
	catalog catalogStore
}

func setup(t *testing.T) *testApp {
	t.Helper()

	db, err := dummydb.Open()
	require.NoError(t, err)

	usrRepo := dummydb.NewUserRepository(db)
	enrRepo := dummydb.NewEnrollmentRepository(db)
	catalog := dummydb.NewCourseCatalog(db)

	mailSvc := emailsvc.NewConsoleServiceMock()
	emailsvc.ClearSentMessages()

	logger := logsvc.NewStdLogger(log.New(os.Stdout, "TEST : ", log.LstdFlags))
	logger.Enable(false)

	usrSvc := user.NewService(usrRepo)
	enrSvc := enrollment.NewService(enrRepo, catalog, usrRepo, mailSvc, logger)

	return &testApp{
		app: NewServer(&Options{
			DisableReqLogs: true,
			Logger:         logger,
			UserSvc:        usrSvc,
			EnrollmentSvc:  enrSvc,
			Catalog:        catalog,
		}),
		usrRepo: usrRepo,
		enrRepo: enrRepo,
		catalog: catalog,
	}
}

type httpErr struct {
	Error string `json:"error"`
}

type httpTest struct {
	name     string
	method   string
	path     string
	body     []byte
	token    string
	wantCode int
	wantData []byte
	extra    interface{}
}

func newAuthRequest(method, path, token string, data ...[]byte) (*http.Request, *httptest.ResponseRecorder) {
	var body bytes.Buffer
	if len(data) > 0 {
		body.Write(data[0])
	}
	req := httptest.NewRequest(method, path, &body)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	return req, rec
}

func newRequest(method, path string, data ...[]byte) (*http.Request, *httptest.ResponseRecorder) {
	return newAuthRequest(method, path, "", data...)
}

func getToken(t *testing.T, usr user.User) string {
	t.Helper()
	claims := GetUserClaims(usr)
	token, err := GenerateToken(claims)
	if err != nil {
		t.Fatalf("getToken() failed: %v", err)
	}
	return token
}

func marshallObj(t *testing.T, obj interface{}) []byte {
	t.Helper()
	data, err := json.Marshal(obj)
	if err != nil {
		t.Fatalf("marshallObj() failed: %v", err)
	}
	return data
}

func jsonBytesEqual(t *testing.T, b1, b2 []byte) (bool, error) {
	var j1, j2 interface{}
	if err := json.Unmarshal(b1, &j1); err != nil {
		return false, err
	}
	if err := json.Unmarshal(b2, &j2); err != nil {
		return false, err
	}
	if reflect.DeepEqual(j1, j2) {
		return true, nil
	}
	if j1 == nil || j2 == nil {
		return false, nil
	}
	return assert.ElementsMatch(t, j1, j2), nil
}

func checkCodeAndData(t *testing.T, tt httpTest, rec *httptest.ResponseRecorder) {
	t.Helper()
	if rec.Code != tt.wantCode {
		t.Errorf("failed! code = %v; wantCode %v", rec.Code, tt.wantCode)
	}
	if tt.wantData == nil {
		return
	}
	ok, err := jsonBytesEqual(t, rec.Body.Bytes(), tt.wantData)
	if err != nil {
		t.Errorf("jsonBytesEqual() failed to compare; err %v", err)
	}
	if !ok {
		t.Errorf("failed! data = %v; wantData %v", rec.Body.String(), string(tt.wantData))
	}
}
