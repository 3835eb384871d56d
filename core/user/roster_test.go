package user_test

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/abiboard/core"
	"github.com/trezcool/abiboard/core/user"
	"github.com/trezcool/abiboard/services/email"
	"github.com/trezcool/abiboard/storage/database/inmem"
	"github.com/trezcool/abiboard/tests"
)

func TestParseRoster(t *testing.T) {
	validate, translator := testutil.NewValidator()

	tests := []struct {
		name      string
		csv       string
		want      []user.RosterEntry
		wantErr   string
		wantProbs []string // invalid fields
	}{
		{name: "empty", csv: "", wantErr: "Die Datei enthält keine Einträge."},
		{name: "header only", csv: "name,email\n", wantErr: "Die Datei enthält keine Einträge."},
		{name: "missing column", csv: "name,username\nAnna,anna\n", wantErr: "Die Kopfzeile muss die Spalten name und email enthalten."},
		{
			name: "comma separated",
			csv:  "Name,E-Mail,email\nAnna Berg,x,Anna@Abi.de\n",
			want: []user.RosterEntry{{Line: 2, Name: "Anna Berg", Email: "anna@abi.de"}},
		},
		{
			name: "semicolon separated with BOM and blank lines",
			csv:  "\ufeffemail;name;username\n ben@abi.de ; Ben Clausen ; Ben\n;;\ncarla@abi.de;Carla Diaz;\n",
			want: []user.RosterEntry{
				{Line: 2, Name: "Ben Clausen", Email: "ben@abi.de", Username: "ben"},
				{Line: 4, Name: "Carla Diaz", Email: "carla@abi.de"},
			},
		},
		{
			name:      "every invalid line is reported",
			csv:       "name,email,username\n,anna@abi.de,\nBen,not-an-email,b\nCarla,carla@abi.de,\n",
			wantProbs: []string{"zeile_2.name", "zeile_3.email", "zeile_3.username"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			entries, err := user.ParseRoster(strings.NewReader(tt.csv), validate, translator)
			switch {
			case tt.wantErr != "":
				var vErr *core.ValidationError
				require.ErrorAs(t, err, &vErr)
				assert.Equal(t, tt.wantErr, vErr.Error())
			case tt.wantProbs != nil:
				var vErr *core.ValidationError
				require.ErrorAs(t, err, &vErr)
				var got []string
				for _, fe := range vErr.Fields {
					got = append(got, fe.Field)
					assert.NotEmpty(t, fe.Error)
				}
				assert.Equal(t, tt.wantProbs, got)
			default:
				require.NoError(t, err)
				assert.Equal(t, tt.want, entries)
			}
		})
	}
}

func TestService_ImportRoster(t *testing.T) {
	conf := testutil.NewConfig()
	logger := testutil.NewLogger(conf)
	db := inmemdb.Open()
	repo := inmemdb.NewUserRepository(db)
	svc := user.NewService(conf, repo, db, emailsvc.NewConsoleServiceMock(conf, logger), db, logger)
	ctx := context.Background()

	testutil.CreateUser(t, repo, "Anna Berg", "anna", "anna@abi.de", "", user.RoleStudent, true)

	t.Run("conflicts and duplicates", func(t *testing.T) {
		_, err := svc.ImportRoster(ctx, []user.RosterEntry{
			{Line: 2, Name: "Anna B", Email: "anna@abi.de"},
			{Line: 3, Name: "Ben Clausen", Email: "ben@abi.de", Username: "ben"},
			{Line: 4, Name: "Ben C", Email: "ben@abi.de"},
			{Line: 5, Name: "Benni", Email: "benni@abi.de", Username: "ben"},
		}, "admin-1")

		var vErr *core.ValidationError
		require.ErrorAs(t, err, &vErr)
		assert.Equal(t, []core.FieldError{
			{Field: "zeile_2.email", Error: user.ErrEmailExists.Error()},
			{Field: "zeile_4.email", Error: "Doppelter Eintrag, siehe Zeile 3."},
			{Field: "zeile_5.username", Error: "Doppelter Eintrag, siehe Zeile 3."},
		}, vErr.Fields)

		users, err := repo.QueryUsers(ctx, &user.QueryFilter{}, nil)
		require.NoError(t, err)
		assert.Len(t, users, 1, "nothing is imported")
	})

	t.Run("imported", func(t *testing.T) {
		res, err := svc.ImportRoster(ctx, []user.RosterEntry{
			{Line: 2, Name: "Ben Clausen", Email: "ben@abi.de", Username: "ben"},
			{Line: 3, Name: "Carla Diaz", Email: "carla@abi.de"},
		}, "admin-1")
		require.NoError(t, err)
		require.Len(t, res.Created, 2)

		for _, usr := range res.Created {
			assert.NotEmpty(t, usr.ID)
			assert.True(t, usr.IsStudent())
			assert.True(t, usr.Active())
			assert.Empty(t, usr.PasswordHash, "students set their password through a reset")
		}
		assert.Equal(t, "ben", res.Created[0].Username)
		assert.Equal(t, "", res.Created[1].Username)

		acts := db.Activities()
		require.NotEmpty(t, acts)
		last := acts[len(acts)-1]
		assert.Equal(t, core.ActivityRosterImported, last.Action)
		assert.Equal(t, "admin-1", last.UserID)
	})
}
