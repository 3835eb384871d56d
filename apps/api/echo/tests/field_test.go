package tests

import (
	"context"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/abiboard/core/field"
	"github.com/trezcool/abiboard/core/user"
	"github.com/trezcool/abiboard/tests"
)

func Test_fieldApi_create(t *testing.T) {
	app := setup(t)

	admin := testutil.CreateUser(t, usrRepo, "Frau Admin", "admin", "admin@abi.de", "", user.RoleAdmin, true)
	student := testutil.CreateUser(t, usrRepo, "Anna Berg", "anna", "anna@abi.de", "", user.RoleStudent, true)
	testutil.CreateField(t, fldRepo, "quote", field.TypeText, "Lieblingszitat", 4, false)
	adminToken := getToken(t, admin)

	type body map[string]interface{}
	tests := []httpTest{
		{name: "Auth required", wantCode: http.StatusUnauthorized, wantData: marchallObj(t, errMissingToken)},
		{name: "Admin required", token: getToken(t, student), wantCode: http.StatusForbidden, wantData: marchallObj(t, errForbidden)},
		{
			name: "required fields", token: adminToken, body: []byte("{}"), wantCode: http.StatusBadRequest,
			wantData: marchallObj(t, map[string]string{"key": reqMsg, "type": reqMsg, "label": "Dieses Feld darf nicht leer sein."}),
		},
		{
			name: "invalid key and type", token: adminToken, wantCode: http.StatusBadRequest,
			body: marchallObj(t, body{"key": "1st_key", "type": "VIDEO", "label": "Video"}),
			wantData: marchallObj(t, map[string]string{
				"key":  "Der Schlüssel muss mit einem Kleinbuchstaben beginnen und darf nur Buchstaben und Ziffern enthalten.",
				"type": "Ungültiger Feldtyp.",
			}),
		},
		{
			name: "duplicate key", token: adminToken, wantCode: http.StatusConflict,
			body:     marchallObj(t, body{"key": "quote", "type": field.TypeTextarea, "label": "Zitat"}),
			wantData: marchallObj(t, map[string]string{"key": "Ein Feld mit diesem Schlüssel existiert bereits."}),
		},
	}
	for i := range tests {
		tests[i].method = http.MethodPost
		tests[i].path = "/v1/admin/profile-fields"
	}
	runTests(t, app, tests)

	t.Run("text field appended", func(t *testing.T) {
		req, rec := newAuthRequest(http.MethodPost, "/v1/admin/profile-fields", adminToken,
			marchallObj(t, body{"key": "favTeacher", "type": field.TypeText, "label": " Lieblingslehrer:in ", "max_length": 50, "max_files": 4}))
		app.ServeHTTP(rec, req)
		require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

		var fld field.Field
		unmarshalBody(t, rec, &fld)
		assert.NotEmpty(t, fld.ID)
		assert.Equal(t, "Lieblingslehrer:in", fld.Label)
		assert.Equal(t, 5, fld.Order)
		assert.True(t, fld.Active)
		require.NotNil(t, fld.MaxLength)
		assert.Equal(t, 50, *fld.MaxLength)
		assert.Nil(t, fld.MaxFiles, "max_files only applies to multi image fields")
	})

	t.Run("multi image field gets a file limit", func(t *testing.T) {
		req, rec := newAuthRequest(http.MethodPost, "/v1/admin/profile-fields", adminToken,
			marchallObj(t, body{"key": "photos", "type": field.TypeMultiImage, "label": "Fotos", "order": 1, "active": false}))
		app.ServeHTTP(rec, req)
		require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

		var fld field.Field
		unmarshalBody(t, rec, &fld)
		assert.Equal(t, 1, fld.Order)
		assert.False(t, fld.Active)
		require.NotNil(t, fld.MaxFiles)
		assert.Equal(t, field.DefaultMaxFiles, *fld.MaxFiles)
	})
}

func Test_fieldApi_queryAndUpdate(t *testing.T) {
	app := setup(t)

	admin := testutil.CreateUser(t, usrRepo, "Frau Admin", "admin", "admin@abi.de", "", user.RoleAdmin, true)
	student := testutil.CreateUser(t, usrRepo, "Anna Berg", "anna", "anna@abi.de", "", user.RoleStudent, true)
	quote := testutil.CreateField(t, fldRepo, "quote", field.TypeText, "Lieblingszitat", 2, true, testutil.WithMaxLength(120))
	photo := testutil.CreateField(t, fldRepo, "photo", field.TypeSingleImage, "Foto", 1, true)
	old := testutil.CreateField(t, fldRepo, "oldField", field.TypeTextarea, "Alt", 0, false, testutil.Inactive)
	adminToken := getToken(t, admin)

	tests := []httpTest{
		{name: "students see active fields", method: http.MethodGet, path: "/v1/profile-fields", token: getToken(t, student), wantData: marchallList(t, photo, quote)},
		{name: "admins see every field", method: http.MethodGet, path: "/v1/admin/profile-fields", token: adminToken, wantData: marchallList(t, old, photo, quote)},
		{name: "retrieve", method: http.MethodGet, path: "/v1/admin/profile-fields/" + quote.ID, token: adminToken, wantData: marchallObj(t, quote)},
		{
			name: "retrieve unknown", method: http.MethodGet, path: "/v1/admin/profile-fields/nope", token: adminToken,
			wantCode: http.StatusNotFound, wantData: marchallObj(t, httpErr{Error: "profile field not found"}),
		},
		{
			name: "key is immutable", method: http.MethodPatch, path: "/v1/admin/profile-fields/" + quote.ID, token: adminToken,
			body: []byte(`{"key": "motto"}`), wantCode: http.StatusBadRequest,
			wantData: marchallObj(t, map[string]string{"key": "Der Schlüssel eines Feldes kann nicht geändert werden."}),
		},
		{
			name: "type is immutable", method: http.MethodPatch, path: "/v1/admin/profile-fields/" + quote.ID, token: adminToken,
			body: []byte(`{"type": "TEXTAREA"}`), wantCode: http.StatusBadRequest,
			wantData: marchallObj(t, map[string]string{"type": "Der Typ eines Feldes kann nicht geändert werden."}),
		},
		{
			name: "update unknown", method: http.MethodPatch, path: "/v1/admin/profile-fields/nope", token: adminToken,
			body: []byte(`{"label": "x"}`), wantCode: http.StatusNotFound,
		},
		{
			name: "fields are never deleted", method: http.MethodDelete, path: "/v1/admin/profile-fields/" + quote.ID, token: adminToken,
			wantCode: http.StatusMethodNotAllowed, wantData: marchallObj(t, httpErr{Error: "Felder können nicht gelöscht werden, nur deaktiviert."}),
		},
		{
			name: "students cannot update", method: http.MethodPatch, path: "/v1/admin/profile-fields/" + quote.ID, token: getToken(t, student),
			body: []byte(`{"label": "x"}`), wantCode: http.StatusForbidden,
		},
	}
	runTests(t, app, tests)

	t.Run("update", func(t *testing.T) {
		req, rec := newAuthRequest(http.MethodPatch, "/v1/admin/profile-fields/"+quote.ID, adminToken,
			[]byte(`{"key": "quote", "label": "Zitat", "max_length": 0, "required": false, "active": false}`))
		app.ServeHTTP(rec, req)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

		var fld field.Field
		unmarshalBody(t, rec, &fld)
		assert.Equal(t, "quote", fld.Key)
		assert.Equal(t, "Zitat", fld.Label)
		assert.Nil(t, fld.MaxLength)
		assert.False(t, fld.Required)
		assert.False(t, fld.Active)
		assert.Equal(t, quote.Order, fld.Order)

		stored, err := fldRepo.GetField(context.Background(), quote.ID)
		require.NoError(t, err)
		assert.Equal(t, "Zitat", stored.Label)
	})
}

func Test_fieldApi_reorder(t *testing.T) {
	app := setup(t)

	admin := testutil.CreateUser(t, usrRepo, "Frau Admin", "admin", "admin@abi.de", "", user.RoleAdmin, true)
	a := testutil.CreateField(t, fldRepo, "a", field.TypeText, "A", 0, false)
	b := testutil.CreateField(t, fldRepo, "b", field.TypeText, "B", 1, false)
	c := testutil.CreateField(t, fldRepo, "c", field.TypeText, "C", 2, false)
	adminToken := getToken(t, admin)

	reorder := func(items ...field.ReorderItem) []byte {
		return marchallObj(t, field.Reorder{Items: items})
	}
	keys := func(t *testing.T) []string {
		flds, err := fldRepo.QueryFields(context.Background(), field.QueryFilter{})
		require.NoError(t, err)
		var keys []string
		for _, fld := range flds {
			keys = append(keys, fld.Key)
		}
		return keys
	}

	tests := []struct {
		name     string
		body     []byte
		wantCode int
		wantKeys []string
	}{
		{name: "empty", body: reorder(), wantCode: http.StatusBadRequest, wantKeys: []string{"a", "b", "c"}},
		{
			name: "duplicate items", wantCode: http.StatusBadRequest, wantKeys: []string{"a", "b", "c"},
			body: reorder(field.ReorderItem{ID: a.ID, Order: 3}, field.ReorderItem{ID: a.ID, Order: 4}),
		},
		{
			name: "unknown field rolls back", wantCode: http.StatusNotFound, wantKeys: []string{"a", "b", "c"},
			body: reorder(field.ReorderItem{ID: a.ID, Order: 9}, field.ReorderItem{ID: "nope", Order: 0}),
		},
		{
			name: "moved", wantCode: http.StatusOK, wantKeys: []string{"c", "a", "b"},
			body: reorder(field.ReorderItem{ID: c.ID, Order: 0}, field.ReorderItem{ID: a.ID, Order: 1}, field.ReorderItem{ID: b.ID, Order: 2}),
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, rec := newAuthRequest(http.MethodPatch, "/v1/admin/profile-fields/reorder", adminToken, tt.body)
			app.ServeHTTP(rec, req)
			assert.Equal(t, tt.wantCode, rec.Code, rec.Body.String())
			assert.Equal(t, tt.wantKeys, keys(t))
		})
	}
}
