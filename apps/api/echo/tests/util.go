package tests

import (
	"bytes"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"reflect"
	"testing"

	"github.com/stretchr/testify/assert"

	. "github.com/trezcool/abiboard/apps/api/echo"
	"github.com/trezcool/abiboard/core"
	"github.com/trezcool/abiboard/core/export"
	"github.com/trezcool/abiboard/core/field"
	"github.com/trezcool/abiboard/core/profile"
	"github.com/trezcool/abiboard/core/setting"
	"github.com/trezcool/abiboard/core/user"
	"github.com/trezcool/abiboard/services/email"
	"github.com/trezcool/abiboard/services/media"
	"github.com/trezcool/abiboard/storage/database/inmem"
	"github.com/trezcool/abiboard/tests"
)

var (
	conf       *core.Config
	db         *inmemdb.DB
	usrRepo    user.Repository
	fldRepo    field.Repository
	profRepo   profile.Repository
	settingSvc *setting.Service
	store      *mediasvc.MemoryStore
	mailSvc    *emailsvc.ConsoleServiceMock

	errMissingToken = httpErr{Error: "missing or malformed jwt"}
	errForbidden    = httpErr{Error: "permission denied"}
)

func setup(t *testing.T) *Server {
	conf = testutil.NewConfig()
	logger := testutil.NewLogger(conf)
	validate, translator := testutil.NewValidator()

	// set up DB & repos
	db = inmemdb.Open()
	usrRepo = inmemdb.NewUserRepository(db)
	fldRepo = inmemdb.NewFieldRepository(db)
	profRepo = inmemdb.NewProfileRepository(db)

	// set up services
	store = mediasvc.NewMemoryStore(conf.Media.MaxFileSize)
	mailSvc = emailsvc.NewConsoleServiceMock(conf, logger)
	settingSvc = setting.NewService(inmemdb.NewSettingRepository(db), db, logger)

	srv := NewServer(ServerDeps{
		Conf:       conf,
		Logger:     logger,
		Validate:   validate,
		Translator: translator,
		Store:      store,
		UserSvc:    user.NewServiceMock(conf, usrRepo, db, mailSvc, db, logger),
		FieldSvc:   field.NewService(fldRepo, db, db, logger),
		ProfileSvc: profile.NewService(profRepo, fldRepo, db, store, mailSvc, db, validate, logger),
		SettingSvc: settingSvc,
		ExportSvc:  export.NewService(usrRepo, profRepo, fldRepo, store, logger),
	})
	t.Cleanup(func() { _ = srv.Close() })
	return srv
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

type formFile struct {
	field    string
	filename string
	content  []byte
}

// newMultipartRequest builds an authenticated multipart/form-data request.
func newMultipartRequest(t *testing.T, method, path, token string, values map[string]string, files ...formFile) (*http.Request, *httptest.ResponseRecorder) {
	var body bytes.Buffer
	w := multipart.NewWriter(&body)
	for k, v := range values {
		if err := w.WriteField(k, v); err != nil {
			t.Fatalf("WriteField() failed: %v", err)
		}
	}
	for _, f := range files {
		fw, err := w.CreateFormFile(f.field, f.filename)
		if err != nil {
			t.Fatalf("CreateFormFile() failed: %v", err)
		}
		if _, err := fw.Write(f.content); err != nil {
			t.Fatalf("Write() failed: %v", err)
		}
	}
	if err := w.Close(); err != nil {
		t.Fatalf("multipart.Close() failed: %v", err)
	}

	req := httptest.NewRequest(method, path, &body)
	req.Header.Set("Content-Type", w.FormDataContentType())
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	return req, httptest.NewRecorder()
}

func getToken(t *testing.T, usr user.User) string {
	claims := GetUserClaims(conf, usr)
	token, err := GenerateToken(conf, claims)
	if err != nil {
		t.Fatalf("getToken() failed: %v", err)
	}
	return token
}

func marchallObj(t *testing.T, obj interface{}) []byte {
	data, err := json.Marshal(obj)
	if err != nil {
		t.Fatalf("marchallObj() failed: %v", err)
	}
	return data
}

func marchallList(t *testing.T, objs ...interface{}) []byte {
	if objs == nil {
		objs = []interface{}{}
	}
	data, err := json.Marshal(objs)
	if err != nil {
		t.Fatalf("marchallList() failed: %v", err)
	}
	return data
}

func unmarshalBody(t *testing.T, rec *httptest.ResponseRecorder, dst interface{}) {
	if err := json.Unmarshal(rec.Body.Bytes(), dst); err != nil {
		t.Fatalf("json.Unmarshal() failed: %v; body %s", err, rec.Body.String())
	}
}

func jsonBytesEqual(b1, b2 []byte) (bool, error) {
	var j1, j2 interface{}
	if err := json.Unmarshal(b1, &j1); err != nil {
		return false, err
	}
	if err := json.Unmarshal(b2, &j2); err != nil {
		return false, err
	}
	return reflect.DeepEqual(j1, j2), nil
}

func checkCodeAndData(t *testing.T, tt httpTest, rec *httptest.ResponseRecorder) {
	assert.Equalf(t, tt.wantCode, rec.Code, "body: %s", rec.Body.String())
	if tt.wantData == nil {
		return
	}
	ok, err := jsonBytesEqual(rec.Body.Bytes(), tt.wantData)
	if err != nil {
		t.Errorf("jsonBytesEqual() failed to compare; err %v", err)
	}
	if !ok {
		t.Errorf("failed! data = %v; wantData %v", rec.Body.String(), string(tt.wantData))
	}
}

func runTests(t *testing.T, app *Server, tests []httpTest) {
	for _, tt := range tests {
		if tt.wantCode == 0 {
			tt.wantCode = http.StatusOK
		}
		t.Run(tt.name, func(t *testing.T) {
			req, rec := newAuthRequest(tt.method, tt.path, tt.token, tt.body)
			app.ServeHTTP(rec, req)
			checkCodeAndData(t, tt, rec)
		})
	}
}
