package tests

import (
	"bytes"
	"context"
	"net/http"
	"net/mail"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/dgrijalva/jwt-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/abiboard/apps/api/echo"
	"github.com/trezcool/abiboard/core"
	"github.com/trezcool/abiboard/core/user"
	"github.com/trezcool/abiboard/tests"
)

const validPwd = "Sonnen$chein42"

var (
	reqMsg    = "Dieses Feld ist erforderlich."
	resetLink = regexp.MustCompile(`/passwort-zuruecksetzen/([A-Za-z0-9_-]+)/([A-Za-z0-9_-]+)`)
)

func Test_userApi_login(t *testing.T) {
	app := setup(t)

	student := testutil.CreateUser(t, usrRepo, "Anna Berg", "anna", "anna@abi.de", validPwd, user.RoleStudent, true)
	testutil.CreateUser(t, usrRepo, "N Dog", "ndog", "ndog@abi.de", validPwd, user.RoleStudent, false)
	testutil.CreateUser(t, usrRepo, "Roster Kid", "", "kid@abi.de", "", user.RoleStudent, true)

	failed := marchallObj(t, httpErr{Error: "Anmeldung fehlgeschlagen."})
	tests := []httpTest{
		{
			name: "required fields", wantCode: http.StatusBadRequest, body: []byte("{}"),
			wantData: marchallObj(t, echoapi.LoginRequest{Username: reqMsg, Password: reqMsg}),
		},
		{
			name: "unknown user", wantCode: http.StatusBadRequest, wantData: failed,
			body: marchallObj(t, echoapi.LoginRequest{Username: "nobody", Password: validPwd}),
		},
		{
			name: "wrong password", wantCode: http.StatusBadRequest, wantData: failed,
			body: marchallObj(t, echoapi.LoginRequest{Username: "anna", Password: "nope"}),
		},
		{
			name: "account without password", wantCode: http.StatusBadRequest, wantData: failed,
			body: marchallObj(t, echoapi.LoginRequest{Username: "kid@abi.de", Password: validPwd}),
		},
		{
			name: "inactive user", wantCode: http.StatusForbidden,
			body:     marchallObj(t, echoapi.LoginRequest{Username: "ndog", Password: validPwd}),
			wantData: marchallObj(t, httpErr{Error: "account deactivated"}),
		},
		{name: "by username", body: marchallObj(t, echoapi.LoginRequest{Username: " ANNA ", Password: validPwd})},
		{name: "by email", body: marchallObj(t, echoapi.LoginRequest{Username: "anna@abi.de", Password: validPwd})},
	}
	for _, tt := range tests {
		tt.method = http.MethodPost
		tt.path = "/v1/users/login"
		if tt.wantCode == 0 {
			tt.wantCode = http.StatusOK
		}

		t.Run(tt.name, func(t *testing.T) {
			req, rec := newRequest(tt.method, tt.path, tt.body)
			app.ServeHTTP(rec, req)

			// cannot guess the token.. check it authenticates the user instead
			if tt.wantCode == http.StatusOK {
				require.Equal(t, tt.wantCode, rec.Code, rec.Body.String())
				var resp echoapi.LoginResponse
				unmarshalBody(t, rec, &resp)
				require.NotEmpty(t, resp.Token)

				req, rec := newAuthRequest(http.MethodGet, "/v1/users/me", resp.Token)
				app.ServeHTTP(rec, req)
				require.Equal(t, http.StatusOK, rec.Code)
				var me user.User
				unmarshalBody(t, rec, &me)
				assert.Equal(t, student.ID, me.ID)
				assert.False(t, me.LastLogin.IsZero())
				return
			}
			checkCodeAndData(t, tt, rec)
		})
	}
}

func Test_userApi_userQuery(t *testing.T) {
	app := setup(t)

	path := func(search, ordering string, isActive *bool, roles ...string) string {
		v := make(url.Values)
		if search != "" {
			v.Add("search", search)
		}
		if ordering != "" {
			v.Add("ordering", ordering)
		}
		if isActive != nil {
			v.Add("is_active", strconv.FormatBool(*isActive))
		}
		for _, r := range roles {
			v.Add("role", r)
		}
		return "/v1/users?" + v.Encode()
	}
	bPtr := func(b bool) *bool { return &b }

	now := time.Now()
	admin := testutil.CreateUser(t, usrRepo, "Frau Admin", "admin", "admin@abi.de", validPwd, user.RoleAdmin, true, now)
	anna := testutil.CreateUser(t, usrRepo, "Anna Berg", "anna", "anna@abi.de", "", user.RoleStudent, true, now.Add(time.Hour))
	ben := testutil.CreateUser(t, usrRepo, "Ben Carl", "ben", "ben@abi.de", "", user.RoleStudent, true, now.Add(2*time.Hour))
	naughty := testutil.CreateUser(t, usrRepo, "N Dog", "ndog", "ndog@abi.de", "", user.RoleStudent, false, now.Add(3*time.Hour))

	adminToken := getToken(t, admin)
	empty := marchallList(t)

	tests := []httpTest{
		{name: "Auth required", path: "/v1/users", wantCode: http.StatusUnauthorized, wantData: marchallObj(t, errMissingToken)},
		{name: "Admin required", path: "/v1/users", token: getToken(t, anna), wantCode: http.StatusForbidden, wantData: marchallObj(t, errForbidden)},
		{name: "Inactive user rejected", path: "/v1/users", token: getToken(t, naughty), wantCode: http.StatusForbidden},
		{name: "Get all", path: "/v1/users", token: adminToken, wantData: marchallList(t, admin, anna, ben, naughty)},
		{name: "search (unknown)", path: path("lol", "", nil), token: adminToken, wantData: empty},
		{name: "search=BE", path: path("BE", "", nil), token: adminToken, wantData: marchallList(t, anna, ben)},
		{name: "role=ADMIN", path: path("", "", nil, user.RoleAdmin), token: adminToken, wantData: marchallList(t, admin)},
		{name: "is_active=false", path: path("", "", bPtr(false)), token: adminToken, wantData: marchallList(t, naughty)},
		{
			name: "order by -created_at", path: path("", "-created_at", nil), token: adminToken,
			wantData: marchallList(t, naughty, ben, anna, admin),
		},
		{
			name: "filtering & ordering", path: path("", "-name", bPtr(true), user.RoleStudent), token: adminToken,
			wantData: marchallList(t, ben, anna),
		},
	}
	for i := range tests {
		tests[i].method = http.MethodGet
	}
	runTests(t, app, tests)
}

func Test_userApi_userRefreshToken(t *testing.T) {
	app := setup(t)

	naughty := testutil.CreateUser(t, usrRepo, "N Dog", "ndog", "ndog@abi.de", "", user.RoleStudent, false)
	student := testutil.CreateUser(t, usrRepo, "Anna Berg", "anna", "anna@abi.de", "", user.RoleStudent, true)

	now := time.Now()
	unrefreshableClaims := &echoapi.Claims{
		StandardClaims: jwt.StandardClaims{
			Issuer:    conf.AppName,
			Subject:   student.ID,
			Audience:  "AbiBoard",
			ExpiresAt: now.Add(conf.Server.JWTExpirationDelta).Unix(),
			IssuedAt:  now.Unix(),
		},
		OrigIssuedAt: now.Add(-2 * conf.Server.JWTRefreshExpirationDelta).Unix(), // older than threshold
		Username:     student.Username,
		IsStudent:    true,
	}
	unrefreshableToken, err := echoapi.GenerateToken(conf, unrefreshableClaims)
	require.NoError(t, err)

	tests := []httpTest{
		{name: "Auth required", wantCode: http.StatusUnauthorized, wantData: marchallObj(t, errMissingToken)},
		{name: "Inactive user not allowed", token: getToken(t, naughty), wantCode: http.StatusForbidden, wantData: marchallObj(t, httpErr{Error: "account deactivated"})},
		{name: "Refresh period expired", token: unrefreshableToken, wantCode: http.StatusForbidden, wantData: marchallObj(t, httpErr{Error: "refresh has expired"})},
		{name: "Token refreshed", token: getToken(t, student), wantCode: http.StatusOK},
	}
	for _, tt := range tests {
		tt.method = http.MethodPost
		tt.path = "/v1/users/token-refresh"

		t.Run(tt.name, func(t *testing.T) {
			req, rec := newAuthRequest(tt.method, tt.path, tt.token, tt.body)
			app.ServeHTTP(rec, req)

			// cannot guess new token.. just check that it's not empty
			if tt.wantCode == http.StatusOK {
				require.Equal(t, tt.wantCode, rec.Code)
				var respData echoapi.LoginResponse
				unmarshalBody(t, rec, &respData)
				assert.NotEmpty(t, respData.Token)
				return
			}
			checkCodeAndData(t, tt, rec)
		})
	}
}

func Test_userApi_userResetPassword(t *testing.T) {
	app := setup(t)

	student := testutil.CreateUser(t, usrRepo, "Anna Berg", "anna", "anna@abi.de", "", user.RoleStudent, true)
	testutil.CreateUser(t, usrRepo, "N Dog", "ndog", "ndog@abi.de", "", user.RoleStudent, false)
	successData := marchallObj(t, echoapi.SuccessResponse{
		Success: "Falls die angegebene E-Mail-Adresse zu einem aktiven Konto gehört, " +
			"erhältst du in Kürze eine E-Mail mit einem Link zum Zurücksetzen deines Passworts.",
	})

	type extraTest struct {
		emailSent bool
		to        mail.Address
	}
	tests := []httpTest{
		{name: "required fields", wantCode: http.StatusBadRequest, body: []byte("{}"), wantData: marchallObj(t, echoapi.PasswordResetRequest{Email: reqMsg})},
		{name: "invalid email", wantCode: http.StatusBadRequest, body: marchallObj(t, echoapi.PasswordResetRequest{Email: "lol"})},
		{
			name: "unknown email", body: marchallObj(t, echoapi.PasswordResetRequest{Email: "lol@abi.de"}),
			wantData: successData, extra: extraTest{emailSent: false},
		},
		{
			name: "inactive user", body: marchallObj(t, echoapi.PasswordResetRequest{Email: "ndog@abi.de"}),
			wantData: successData, extra: extraTest{emailSent: false},
		},
		{
			name: "known email", body: marchallObj(t, echoapi.PasswordResetRequest{Email: " ANNA@abi.de"}),
			wantData: successData, extra: extraTest{emailSent: true, to: mail.Address{Name: student.Name, Address: student.Email}},
		},
	}
	for _, tt := range tests {
		tt.method = http.MethodPost
		tt.path = "/v1/users/password-reset"
		if tt.wantCode == 0 {
			tt.wantCode = http.StatusOK
		}

		t.Run(tt.name, func(t *testing.T) {
			mailSvc.Outbox.Reset()

			req, rec := newRequest(tt.method, tt.path, tt.body)
			app.ServeHTTP(rec, req)
			checkCodeAndData(t, tt, rec)

			extra, ok := tt.extra.(extraTest)
			if !ok {
				return
			}
			msgs := mailSvc.Outbox.Messages()
			if !extra.emailSent {
				assert.Empty(t, msgs)
				return
			}
			require.Len(t, msgs, 1)
			msg := msgs[0]
			assert.Equal(t, extra.to, msg.To[0])
			assert.Contains(t, msg.TextContent, student.Username)
			assert.Regexp(t, resetLink, msg.TextContent)
			assert.Regexp(t, resetLink, msg.HTMLContent)
		})
	}
}

func Test_userApi_userConfirmPasswordReset(t *testing.T) {
	app := setup(t)

	student := testutil.CreateUser(t, usrRepo, "Anna Berg", "anna", "anna@abi.de", "", user.RoleStudent, true)

	// request a reset link the way a student would
	req, rec := newRequest(http.MethodPost, "/v1/users/password-reset", marchallObj(t, echoapi.PasswordResetRequest{Email: student.Email}))
	app.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	msgs := mailSvc.Outbox.Messages()
	require.Len(t, msgs, 1)
	match := resetLink.FindStringSubmatch(msgs[0].TextContent)
	require.Len(t, match, 3)
	validUID, validToken := match[1], match[2]

	invalidLink := marchallObj(t, httpErr{Error: "Ungültiger oder abgelaufener Link."})
	tests := []httpTest{
		{
			name: "required fields", wantCode: http.StatusBadRequest, body: []byte("{}"),
			wantData: marchallObj(t, user.ResetUserPassword{Token: reqMsg, UID: reqMsg, Password: reqMsg, PasswordConfirm: reqMsg}),
		},
		{
			name: "PasswordConfirm must = Password", wantCode: http.StatusBadRequest,
			body: marchallObj(t, user.ResetUserPassword{Token: "lol", UID: "lol", Password: validPwd, PasswordConfirm: "lol"}),
		},
		{
			name: "invalid uid", wantCode: http.StatusBadRequest, wantData: invalidLink,
			body: marchallObj(t, user.ResetUserPassword{Token: validToken, UID: "***", Password: validPwd, PasswordConfirm: validPwd}),
		},
		{
			name: "user not found", wantCode: http.StatusBadRequest, wantData: invalidLink,
			body: marchallObj(t, user.ResetUserPassword{Token: validToken, UID: "OTk5", Password: validPwd, PasswordConfirm: validPwd}),
		},
		{
			name: "invalid token", wantCode: http.StatusBadRequest, wantData: invalidLink,
			body: marchallObj(t, user.ResetUserPassword{Token: "GE4TS-sigsig", UID: validUID, Password: validPwd, PasswordConfirm: validPwd}),
		},
		{
			name: "valid token", wantCode: http.StatusOK,
			body:     marchallObj(t, user.ResetUserPassword{Token: validToken, UID: validUID, Password: validPwd, PasswordConfirm: validPwd}),
			wantData: marchallObj(t, echoapi.SuccessResponse{Success: "Dein Passwort wurde zurückgesetzt."}),
		},
	}
	for _, tt := range tests {
		tt.method = http.MethodPost
		tt.path = "/v1/users/password-reset-confirm"

		t.Run(tt.name, func(t *testing.T) {
			req, rec := newRequest(tt.method, tt.path, tt.body)
			app.ServeHTTP(rec, req)
			checkCodeAndData(t, tt, rec)

			if tt.wantCode == http.StatusOK {
				refreshed, err := usrRepo.GetUser(context.Background(), user.GetFilter{ID: student.ID})
				require.NoError(t, err)
				assert.False(t, bytes.Equal(refreshed.PasswordHash, student.PasswordHash), "password was not updated")
				assert.NoError(t, refreshed.CheckPassword(validPwd))
			}
		})
	}
}

func Test_userApi_importRoster(t *testing.T) {
	app := setup(t)

	admin := testutil.CreateUser(t, usrRepo, "Frau Admin", "admin", "admin@abi.de", "", user.RoleAdmin, true)
	student := testutil.CreateUser(t, usrRepo, "Anna Berg", "anna", "anna@abi.de", "", user.RoleStudent, true)
	adminToken := getToken(t, admin)

	roster := func(lines ...string) formFile {
		return formFile{field: "file", filename: "jahrgang.csv", content: []byte(strings.Join(lines, "\n"))}
	}

	t.Run("admin required", func(t *testing.T) {
		req, rec := newMultipartRequest(t, http.MethodPost, "/v1/users/import", getToken(t, student), nil, roster("name,email", "Ben,ben@abi.de"))
		app.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusForbidden, rec.Code)
	})

	t.Run("file required", func(t *testing.T) {
		req, rec := newMultipartRequest(t, http.MethodPost, "/v1/users/import", adminToken, map[string]string{"lol": "x"})
		app.ServeHTTP(rec, req)
		checkCodeAndData(t, httpTest{wantCode: http.StatusBadRequest, wantData: marchallObj(t, map[string]string{"file": "Bitte eine CSV-Datei hochladen."})}, rec)
	})

	t.Run("existing email rejects the whole file", func(t *testing.T) {
		req, rec := newMultipartRequest(t, http.MethodPost, "/v1/users/import", adminToken, nil,
			roster("name;email", "Ben Carl;ben@abi.de", "Anna B;ANNA@abi.de"))
		app.ServeHTTP(rec, req)
		require.Equal(t, http.StatusBadRequest, rec.Code, rec.Body.String())

		var errs map[string]string
		unmarshalBody(t, rec, &errs)
		assert.Contains(t, errs, "zeile_3.email")

		_, err := usrRepo.GetUser(context.Background(), user.GetFilter{Email: "ben@abi.de"})
		assert.True(t, core.IsNotFound(err))
	})

	t.Run("created", func(t *testing.T) {
		req, rec := newMultipartRequest(t, http.MethodPost, "/v1/users/import", adminToken, nil,
			roster("\ufeffname,email,username", "Ben Carl,ben@abi.de,ben", "", "Cleo Dorn,cleo@abi.de,"))
		app.ServeHTTP(rec, req)
		require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

		var res user.ImportResult
		unmarshalBody(t, rec, &res)
		require.Len(t, res.Created, 2)
		assert.Equal(t, "ben", res.Created[0].Username)
		assert.Equal(t, "cleo@abi.de", res.Created[1].Email)
		assert.Equal(t, user.RoleStudent, res.Created[1].Role)

		var imported int
		for _, act := range db.Activities() {
			if act.Action == core.ActivityRosterImported {
				imported++
				assert.Equal(t, admin.ID, act.UserID)
			}
		}
		assert.Equal(t, 1, imported)
	})
}
