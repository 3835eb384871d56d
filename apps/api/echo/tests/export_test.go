package tests

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/csv"
	"io"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/abiboard/core"
	"github.com/trezcool/abiboard/core/export"
	"github.com/trezcool/abiboard/core/field"
	"github.com/trezcool/abiboard/core/profile"
	"github.com/trezcool/abiboard/core/user"
	"github.com/trezcool/abiboard/tests"
)

func Test_settingApi(t *testing.T) {
	app := setup(t)

	admin := testutil.CreateUser(t, usrRepo, "Frau Admin", "admin", "admin@abi.de", "", user.RoleAdmin, true)
	student := testutil.CreateUser(t, usrRepo, "Anna Berg", "anna", "anna@abi.de", "", user.RoleStudent, true)
	deadline := time.Date(2026, time.March, 1, 18, 0, 0, 0, time.UTC)

	runTests(t, app, []httpTest{
		{name: "Auth required", method: http.MethodGet, path: "/v1/settings", wantCode: http.StatusUnauthorized, wantData: marchallObj(t, errMissingToken)},
		{name: "no deadline", method: http.MethodGet, path: "/v1/settings", token: getToken(t, student), wantData: []byte(`{"deadline": {"at": null}}`)},
		{
			name: "Admin required", method: http.MethodPut, path: "/v1/admin/settings", token: getToken(t, student),
			body: marchallObj(t, map[string]interface{}{"deadline_at": deadline}), wantCode: http.StatusForbidden, wantData: marchallObj(t, errForbidden),
		},
		{
			name: "set deadline", method: http.MethodPut, path: "/v1/admin/settings", token: getToken(t, admin),
			body: marchallObj(t, map[string]interface{}{"deadline_at": deadline}), wantData: []byte(`{"deadline": {"at": "2026-03-01T18:00:00Z"}}`),
		},
		{name: "students see the deadline", method: http.MethodGet, path: "/v1/settings", token: getToken(t, student), wantData: []byte(`{"deadline": {"at": "2026-03-01T18:00:00Z"}}`)},
		{
			name: "clear deadline", method: http.MethodPut, path: "/v1/admin/settings", token: getToken(t, admin),
			body: []byte(`{"deadline_at": null}`), wantData: []byte(`{"deadline": {"at": null}}`),
		},
	})

	var changes int
	for _, a := range db.Activities() {
		if a.UserID == admin.ID && a.Action == core.ActivityDeadlineChanged {
			changes++
		}
	}
	assert.Equal(t, 2, changes)
}

func Test_exportApi(t *testing.T) {
	app := setup(t)

	testutil.CreateField(t, fldRepo, "quote", field.TypeText, "Lieblingszitat", 0, true)
	testutil.CreateField(t, fldRepo, "portrait", field.TypeSingleImage, "Porträt", 1, true)
	testutil.CreateField(t, fldRepo, "photos", field.TypeMultiImage, "Fotos", 2, false)
	testutil.CreateField(t, fldRepo, "legacy", field.TypeText, "Alt", 3, true, testutil.Inactive)

	admin := testutil.CreateUser(t, usrRepo, "Frau Admin", "admin", "admin@abi.de", "", user.RoleAdmin, true)
	anna := testutil.CreateUser(t, usrRepo, "Anna Berg", "anna", "anna@abi.de", "", user.RoleStudent, true)
	ben := testutil.CreateUser(t, usrRepo, "Ben Clausen", "ben", "ben@abi.de", "", user.RoleStudent, true)
	adminToken := getToken(t, admin)
	annaToken := getToken(t, anna)
	png := testutil.PNG(t, 6, 6)

	req, rec := newMultipartRequest(t, http.MethodPatch, "/v1/profile", annaToken,
		map[string]string{"values": `{"quote": "Tab\tund\nZeile"}`, "nickname": "Anni"},
		formFile{field: "portrait", filename: "me.png", content: png},
		formFile{field: "photos", filename: "1.png", content: png},
		formFile{field: "photos", filename: "2.png", content: png},
	)
	app.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	req, rec = newAuthRequest(http.MethodPost, "/v1/profile/submit", annaToken)
	app.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	prof, err := profRepo.GetProfileByUserID(context.Background(), anna.ID)
	require.NoError(t, err)
	require.NotNil(t, prof.SubmittedAt)

	runTests(t, app, []httpTest{
		{name: "Auth required", method: http.MethodGet, path: "/v1/admin/profiles", wantCode: http.StatusUnauthorized, wantData: marchallObj(t, errMissingToken)},
		{name: "Admin required", method: http.MethodGet, path: "/v1/admin/export/profiles.tsv", token: annaToken, wantCode: http.StatusForbidden, wantData: marchallObj(t, errForbidden)},
		{name: "Admin required for ZIP", method: http.MethodGet, path: "/v1/admin/export/profiles.zip", token: annaToken, wantCode: http.StatusForbidden},
		{
			name: "summaries", method: http.MethodGet, path: "/v1/admin/profiles", token: adminToken,
			wantData: marchallList(t,
				export.Summary{
					UserID: anna.ID, Name: anna.Name, Username: anna.Username, Email: anna.Email,
					Status: profile.StatusSubmitted, SubmittedAt: prof.SubmittedAt, Missing: []string{},
				},
				export.Summary{
					UserID: ben.ID, Name: ben.Name, Username: ben.Username, Email: ben.Email,
					Status: profile.StatusDraft, Missing: []string{"Lieblingszitat ist ein Pflichtfeld.", "Porträt ist ein Pflichtfeld."},
				},
			),
		},
	})

	t.Run("TSV", func(t *testing.T) {
		req, rec := newAuthRequest(http.MethodGet, "/v1/admin/export/profiles.tsv", adminToken)
		app.ServeHTTP(rec, req)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		assert.Equal(t, "text/tab-separated-values; charset=UTF-8", rec.Header().Get("Content-Type"))
		assert.Contains(t, rec.Header().Get("Content-Disposition"), "attachment; filename=\"steckbriefe-")

		rows := readTSV(t, rec.Body)
		require.Len(t, rows, 3)
		assert.Equal(t, []string{"name", "username", "email", "status", "submitted_at", "nickname", "motto", "quote", "portrait", "photos", "legacy"}, rows[0])

		annaRow := rows[1]
		assert.Equal(t, []string{"Anna Berg", "anna", "anna@abi.de", "SUBMITTED", prof.SubmittedAt.UTC().Format(time.RFC3339), "Anni", ""}, annaRow[:7])
		assert.Equal(t, "Tab und Zeile", annaRow[7])
		assert.Contains(t, store.Refs(), annaRow[8])
		assert.Len(t, bytes.Split([]byte(annaRow[9]), []byte(", ")), 2)
		assert.Equal(t, "", annaRow[10])

		assert.Equal(t, []string{"Ben Clausen", "ben", "ben@abi.de", "DRAFT", "", "", "", "", "", "", ""}, rows[2])
	})

	t.Run("ZIP", func(t *testing.T) {
		req, rec := newAuthRequest(http.MethodGet, "/v1/admin/export/profiles.zip", adminToken)
		app.ServeHTTP(rec, req)
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "application/zip", rec.Header().Get("Content-Type"))

		zr, err := zip.NewReader(bytes.NewReader(rec.Body.Bytes()), int64(rec.Body.Len()))
		require.NoError(t, err)

		entries := make(map[string][]byte)
		var names []string
		for _, f := range zr.File {
			rc, err := f.Open()
			require.NoError(t, err)
			content, err := io.ReadAll(rc)
			require.NoError(t, err)
			rc.Close()
			entries[f.Name] = content
			names = append(names, f.Name)
		}
		assert.Equal(t, []string{
			"steckbriefe.tsv",
			"bilder/anna/photos_1.png",
			"bilder/anna/photos_2.png",
			"bilder/anna/portrait.png",
		}, names)
		assert.Equal(t, png, entries["bilder/anna/portrait.png"])

		rows := readTSV(t, bytes.NewReader(entries["steckbriefe.tsv"]))
		require.Len(t, rows, 3)
		assert.Equal(t, "bilder/anna/portrait.png", rows[1][8])
		assert.Equal(t, "bilder/anna/photos_1.png, bilder/anna/photos_2.png", rows[1][9])
	})
}

func readTSV(t *testing.T, r io.Reader) [][]string {
	t.Helper()
	tr := csv.NewReader(r)
	tr.Comma = '\t'
	rows, err := tr.ReadAll()
	require.NoError(t, err)
	return rows
}
