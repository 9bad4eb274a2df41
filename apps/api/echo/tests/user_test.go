package tests

import (
	"encoding/json"
	"net/http"
	"testing"

	echoapi "github.com/chibale/darasa/apps/api/echo"
	"github.com/chibale/darasa/core/user"
	testutil "github.com/chibale/darasa/tests"
)

func Test_userApi_login(t *testing.T) {
	ta := setup(t)

	pwd := "LeTsProTecT!?"
	usr := testutil.CreateUser(t, ta.usrRepo, "Hero", "hero", "hero@test.cd", pwd, []string{user.RoleStudent}, true)
	naughty := testutil.CreateUser(t, ta.usrRepo, "N Dog", "ndog", "ndog@test.cd", pwd, []string{user.RoleStudent}, false)

	tests := []httpTest{
		{
			name: "empty body", wantCode: http.StatusBadRequest,
			wantData: marshallObj(t, map[string]string{"username": "this field is required", "password": "this field is required"}),
		},
		{
			name: "unknown user", body: marshallObj(t, echoapi.LoginRequest{Username: "lol", Password: pwd}),
			wantCode: http.StatusBadRequest, wantData: marshallObj(t, httpErr{Error: "authentication failed"}),
		},
		{
			name: "wrong password", body: marshallObj(t, echoapi.LoginRequest{Username: usr.Username, Password: "lol"}),
			wantCode: http.StatusBadRequest, wantData: marshallObj(t, httpErr{Error: "authentication failed"}),
		},
		{
			name: "deactivated account", body: marshallObj(t, echoapi.LoginRequest{Username: naughty.Username, Password: pwd}),
			wantCode: http.StatusForbidden, wantData: marshallObj(t, httpErr{Error: "account deactivated"}),
		},
		{name: "login with username", body: marshallObj(t, echoapi.LoginRequest{Username: usr.Username, Password: pwd}), wantCode: http.StatusOK},
		{name: "login with email", body: marshallObj(t, echoapi.LoginRequest{Username: usr.Email, Password: pwd}), wantCode: http.StatusOK},
		{name: "username is case-insensitive", body: marshallObj(t, echoapi.LoginRequest{Username: "HeRo", Password: pwd}), wantCode: http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, rec := newRequest(http.MethodPost, "/v1/users/login", tt.body)
			ta.app.ServeHTTP(rec, req)

			if tt.wantCode == http.StatusOK {
				// cannot guess the token.. just check that it's not empty
				if rec.Code != tt.wantCode {
					t.Fatalf("failed! code = %v; wantCode %v; body %s", rec.Code, tt.wantCode, rec.Body.String())
				}
				var respData echoapi.LoginResponse
				if err := json.Unmarshal(rec.Body.Bytes(), &respData); err != nil {
					t.Fatalf("json.Unmarshal() failed! err %v", err)
				}
				if respData.Token == "" {
					t.Error("failed! empty token")
				}
				return
			}
			checkCodeAndData(t, tt, rec)
		})
	}
}

func Test_userApi_refreshToken(t *testing.T) {
	ta := setup(t)

	usr := testutil.CreateUser(t, ta.usrRepo, "Hero", "hero", "hero@test.cd", "", []string{user.RoleStudent}, true)

	tests := []httpTest{
		{name: "auth required", wantCode: http.StatusUnauthorized, wantData: marshallObj(t, errMissingToken)},
		{name: "ok", token: getToken(t, usr), wantCode: http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, rec := newAuthRequest(http.MethodPost, "/v1/users/token-refresh", tt.token)
			ta.app.ServeHTTP(rec, req)

			if tt.wantCode == http.StatusOK {
				if rec.Code != tt.wantCode {
					t.Fatalf("failed! code = %v; wantCode %v; body %s", rec.Code, tt.wantCode, rec.Body.String())
				}
				var respData echoapi.LoginResponse
				if err := json.Unmarshal(rec.Body.Bytes(), &respData); err != nil {
					t.Fatalf("json.Unmarshal() failed! err %v", err)
				}
				if respData.Token == "" {
					t.Error("failed! empty token")
				}
				return
			}
			checkCodeAndData(t, tt, rec)
		})
	}
}

func Test_userApi_retrieveSelf(t *testing.T) {
	ta := setup(t)

	usr := testutil.CreateUser(t, ta.usrRepo, "Hero", "hero", "hero@test.cd", "", []string{user.RoleStudent}, true)

	tests := []httpTest{
		{name: "auth required", wantCode: http.StatusUnauthorized, wantData: marshallObj(t, errMissingToken)},
		{name: "ok", token: getToken(t, usr), wantCode: http.StatusOK, wantData: marshallObj(t, usr)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, rec := newAuthRequest(http.MethodGet, "/v1/users/me", tt.token)
			ta.app.ServeHTTP(rec, req)
			checkCodeAndData(t, tt, rec)
		})
	}
}
