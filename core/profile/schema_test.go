package profile

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/abiboard/core"
	"github.com/trezcool/abiboard/core/field"
)

func intPtr(n int) *int { return &n }

func testFields() []field.Field {
	return []field.Field{
		{ID: "f-photos", Key: "photos", Type: field.TypeMultiImage, Label: "Fotos", MaxFiles: intPtr(2), Order: 3, Active: true},
		{ID: "f-quote", Key: "quote", Type: field.TypeText, Label: "Zitat", MaxLength: intPtr(5), Order: 0, Active: true, Required: true},
		{ID: "f-bio", Key: "bio", Type: field.TypeTextarea, Label: "Bio", Order: 1, Active: true},
		{ID: "f-portrait", Key: "portrait", Type: field.TypeSingleImage, Label: "Porträt", Order: 2, Active: true, Required: true},
		{ID: "f-old", Key: "old", Type: field.TypeText, Label: "Alt", Order: 4, Required: true},
		{ID: "f-video", Key: "video", Type: field.Type("VIDEO"), Label: "Video", Order: 5, Active: true, Required: true},
	}
}

func upload(name string) core.Upload {
	return core.UploadFromBytes(name, []byte("content of "+name))
}

func fieldErrors(t *testing.T, err error) []core.FieldError {
	t.Helper()
	var vErr *core.ValidationError
	require.ErrorAs(t, err, &vErr)
	return vErr.Fields
}

func TestBuildSchema(t *testing.T) {
	s := BuildSchema(testFields())
	assert.Equal(t, []string{"quote", "bio", "portrait", "photos"}, s.Keys(), "active known fields, in order")
	assert.Empty(t, BuildSchema(nil).Keys())
}

func TestSchema_Validate(t *testing.T) {
	s := BuildSchema(testFields())
	current := map[string]Value{
		"f-quote":    Text{Text: "alt"},
		"f-portrait": SingleImage{Ref: "p/1.jpg"},
		"f-photos":   MultiImage{Images: []string{"p/a.jpg", "p/b.jpg"}},
	}

	draft := func(values string, uploads map[string][]core.Upload) Draft {
		d := Draft{Uploads: uploads}
		if values != "" {
			require.NoError(t, json.Unmarshal([]byte(values), &d.Values))
		}
		return d
	}

	tests := []struct {
		name    string
		draft   Draft
		want    map[string]Value // by field key
		uploads map[string]int   // by field key
		wantErr core.FieldError
	}{
		{name: "nothing", draft: draft("", nil), want: map[string]Value{}},
		{name: "unknown and inactive keys are ignored", draft: draft(`{"nope": 1, "old": "x", "video": "y"}`, nil), want: map[string]Value{}},
		{name: "text", draft: draft(`{"quote": "neu", "bio": null}`, nil), want: map[string]Value{"quote": Text{Text: "neu"}, "bio": Text{}}},
		{name: "text counts runes", draft: draft(`{"quote": "äöüßé"}`, nil), want: map[string]Value{"quote": Text{Text: "äöüßé"}}},
		{
			name: "text too long", draft: draft(`{"quote": "zu lang"}`, nil),
			wantErr: core.FieldError{Field: "quote", Error: "Zitat darf höchstens 5 Zeichen lang sein."},
		},
		{
			name: "text of wrong type", draft: draft(`{"bio": ["a"]}`, nil),
			wantErr: core.FieldError{Field: "bio", Error: "Bio muss ein Text sein."},
		},
		{
			name: "upload to text", draft: draft("", map[string][]core.Upload{"bio": {upload("a.png")}}),
			wantErr: core.FieldError{Field: "bio", Error: "Bio akzeptiert keine Dateien."},
		},
		{name: "single image kept", draft: draft(`{"portrait": "p/1.jpg"}`, nil), want: map[string]Value{"portrait": SingleImage{Ref: "p/1.jpg"}}},
		{name: "single image removed", draft: draft(`{"portrait": null}`, nil), want: map[string]Value{"portrait": SingleImage{}}},
		{
			name: "single image replaced", draft: draft("", map[string][]core.Upload{"portrait": {upload("b.png")}}),
			want: map[string]Value{"portrait": SingleImage{}}, uploads: map[string]int{"portrait": 1},
		},
		{
			name: "single image unknown", draft: draft(`{"portrait": "p/2.jpg"}`, nil),
			wantErr: core.FieldError{Field: "portrait", Error: "Porträt: unbekanntes Bild."},
		},
		{
			name: "single image two uploads", draft: draft("", map[string][]core.Upload{"portrait": {upload("a.png"), upload("b.png")}}),
			wantErr: core.FieldError{Field: "portrait", Error: "Porträt: nur ein Bild erlaubt."},
		},
		{
			name: "single image not a string", draft: draft(`{"portrait": 3}`, nil),
			wantErr: core.FieldError{Field: "portrait", Error: "Porträt muss eine Bildreferenz sein."},
		},
		{
			name: "multi image reordered and deduplicated", draft: draft(`{"photos": ["p/b.jpg", "p/a.jpg", "p/b.jpg"]}`, nil),
			want: map[string]Value{"photos": MultiImage{Images: []string{"p/b.jpg", "p/a.jpg"}}},
		},
		{
			name: "multi image keep one and upload one", draft: draft(`{"photos": ["p/b.jpg"]}`, map[string][]core.Upload{"photos": {upload("c.png")}}),
			want: map[string]Value{"photos": MultiImage{Images: []string{"p/b.jpg"}}}, uploads: map[string]int{"photos": 1},
		},
		{
			name: "multi image appending exceeds the limit", draft: draft("", map[string][]core.Upload{"photos": {upload("c.png")}}),
			wantErr: core.FieldError{Field: "photos", Error: "Fotos: höchstens 2 Bilder erlaubt."},
		},
		{
			name: "multi image cleared then filled", draft: draft(`{"photos": null}`, map[string][]core.Upload{"photos": {upload("c.png"), upload("d.png")}}),
			want: map[string]Value{"photos": MultiImage{}}, uploads: map[string]int{"photos": 2},
		},
		{
			name: "multi image unknown", draft: draft(`{"photos": ["p/x.jpg"]}`, nil),
			wantErr: core.FieldError{Field: "photos", Error: "Fotos: unbekanntes Bild."},
		},
		{
			name: "multi image not a list", draft: draft(`{"photos": "p/a.jpg"}`, nil),
			wantErr: core.FieldError{Field: "photos", Error: "Fotos muss eine Liste von Bildreferenzen sein."},
		},
		{
			name: "first violation wins", draft: draft(`{"quote": 1, "photos": 1}`, nil),
			wantErr: core.FieldError{Field: "quote", Error: "Zitat muss ein Text sein."},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			changes, err := s.Validate(tt.draft, current)
			if tt.wantErr.Field != "" {
				assert.Nil(t, changes)
				assert.Equal(t, []core.FieldError{tt.wantErr}, fieldErrors(t, err))
				return
			}
			require.NoError(t, err)

			got := make(map[string]Value, len(changes))
			gotUploads := make(map[string]int)
			for _, ch := range changes {
				got[ch.Field.Key] = ch.Value
				if len(ch.Uploads) > 0 {
					gotUploads[ch.Field.Key] = len(ch.Uploads)
				}
			}
			assert.Equal(t, tt.want, got)
			if tt.uploads == nil {
				tt.uploads = map[string]int{}
			}
			assert.Equal(t, tt.uploads, gotUploads)
		})
	}
}

func TestCheckRequired(t *testing.T) {
	flds := testFields()

	tests := []struct {
		name   string
		values map[string]Value
		want   []string
	}{
		{name: "nothing stored", want: []string{"Zitat ist ein Pflichtfeld.", "Porträt ist ein Pflichtfeld."}},
		{
			name:   "blank text and empty image",
			values: map[string]Value{"f-quote": Text{Text: "   "}, "f-portrait": SingleImage{}},
			want:   []string{"Zitat ist ein Pflichtfeld.", "Porträt ist ein Pflichtfeld."},
		},
		{
			name:   "complete",
			values: map[string]Value{"f-quote": Text{Text: "hi"}, "f-portrait": SingleImage{Ref: "p/1.jpg"}},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, CheckRequired(flds, tt.values))
		})
	}
}

func TestValueEncoding(t *testing.T) {
	tests := []struct {
		name  string
		typ   field.Type
		value Value
		json  string
	}{
		{name: "text", typ: field.TypeText, value: Text{Text: "Hallo"}, json: `"Hallo"`},
		{name: "empty text", typ: field.TypeTextarea, value: Text{}, json: `""`},
		{name: "image", typ: field.TypeSingleImage, value: SingleImage{Ref: "p/1.jpg"}, json: `"p/1.jpg"`},
		{name: "no image", typ: field.TypeSingleImage, value: SingleImage{}, json: `null`},
		{name: "images", typ: field.TypeMultiImage, value: MultiImage{Images: []string{"a", "b"}}, json: `["a","b"]`},
		{name: "no images", typ: field.TypeMultiImage, value: MultiImage{}, json: `[]`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b, err := json.Marshal(tt.value)
			require.NoError(t, err)
			assert.JSONEq(t, tt.json, string(b))

			decoded, err := DecodeValue(tt.typ, EncodeValue(tt.value))
			require.NoError(t, err)
			assert.Equal(t, tt.value, decoded)
			assert.True(t, EmptyValue(tt.typ).Empty())
		})
	}

	_, err := DecodeValue(field.Type("VIDEO"), Columns{})
	assert.Error(t, err)
	assert.Nil(t, EmptyValue(field.Type("VIDEO")))
}
