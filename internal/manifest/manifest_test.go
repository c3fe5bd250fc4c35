package manifest_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"sync/atomic"
	"testing"

	"rollscan/internal/layout"
	"rollscan/internal/manifest"
	"rollscan/internal/rolls"
	"rollscan/internal/services"
	"rollscan/internal/testsupport"
)

const v2Manifest = `{
  "label": "The Entertainer : ragtime two step",
  "metadata": [
    {"label": "Roll type", "value": "Welte-Mignon red roll (T-100)."},
    {"label": "Publisher", "value": "M. Welte & Sons"}
  ],
  "sequences": [
    {
      "rendering": [
        {"@id": "https://stacks.example.org/hk155fw7898_0001_rgb.tiff", "format": "image/tiff"},
        {"@id": "https://stacks.example.org/hk155fw7898_0001_gr.tiff", "format": "image/x-tiff-big"}
      ]
    }
  ]
}`

const v3Manifest = `{
  "label": {"en": ["Some 88-note roll"]},
  "metadata": [
    {"label": {"en": ["Roll type"]}, "value": {"en": ["standard"]}},
    {"label": {"en": ["Scale"]}, "value": {"en": ["Scale: 88n."]}}
  ],
  "items": [
    {
      "canvases": [
        {"rendering": [{"id": "https://stacks.example.org/xy123ab4567_0001_ir_sp.jp2", "format": "image/jp2"}]}
      ]
    }
  ]
}`

func TestParseSelectsPreferredImage(t *testing.T) {
	doc, err := manifest.Parse([]byte(v2Manifest))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	url, err := doc.ImageURL()
	if err != nil {
		t.Fatalf("ImageURL: %v", err)
	}
	if want := "https://stacks.example.org/hk155fw7898_0001_gr.tiff"; url != want {
		t.Fatalf("ImageURL = %q, want %q", url, want)
	}
	if doc.Title() != "The Entertainer : ragtime two step" {
		t.Fatalf("Title = %q", doc.Title())
	}
}

func TestParseHandlesV3Shapes(t *testing.T) {
	doc, err := manifest.Parse([]byte(v3Manifest))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	url, err := doc.ImageURL()
	if err != nil {
		t.Fatalf("ImageURL: %v", err)
	}
	if want := "https://stacks.example.org/xy123ab4567_0001_ir_sp.jp2"; url != want {
		t.Fatalf("ImageURL = %q, want %q", url, want)
	}
}

func TestImageURLSingleRenderingWins(t *testing.T) {
	doc, err := manifest.Parse([]byte(`{
		"sequences": [{"rendering": [{"@id": "https://stacks.example.org/x_rgb.tiff", "format": "image/tiff"}]}]
	}`))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	url, err := doc.ImageURL()
	if err != nil {
		t.Fatalf("ImageURL: %v", err)
	}
	if url != "https://stacks.example.org/x_rgb.tiff" {
		t.Fatalf("ImageURL = %q", url)
	}
}

func TestImageURLMissingSequences(t *testing.T) {
	doc, err := manifest.Parse([]byte(`{"label": "empty"}`))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if _, err := doc.ImageURL(); !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestRollTypePrecedence(t *testing.T) {
	cases := []struct {
		name     string
		payload  string
		want     rolls.Type
		wantMiss bool
	}{
		{
			name:    "dedicated type entry wins",
			payload: `{"metadata": [{"label": "Roll type", "value": "Welte-Mignon licensee roll."}, {"label": "Scale", "value": "Scale: 88n."}]}`,
			want:    rolls.TypeWelteLicensee,
		},
		{
			name:    "scale refines standard",
			payload: `{"metadata": [{"label": "Roll type", "value": "standard"}, {"label": "Scale", "value": "Scale: 65n."}]}`,
			want:    rolls.Type65Note,
		},
		{
			name:    "specific note overrides generic",
			payload: `{"metadata": [{"label": "Note", "value": "88n"}, {"label": "Note", "value": "Duo-Art piano rolls."}]}`,
			want:    rolls.TypeDuoArt,
		},
		{
			name:    "generic note fills only a gap",
			payload: `{"metadata": [{"label": "Roll type", "value": "Welte-Mignon red roll (T-100)"}, {"label": "Note", "value": "88n"}]}`,
			want:    rolls.TypeWelteRed,
		},
		{
			name:     "unrecognized metadata fails",
			payload:  `{"metadata": [{"label": "Publisher", "value": "Aeolian"}]}`,
			wantMiss: true,
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			doc, err := manifest.Parse([]byte(tc.payload))
			if err != nil {
				t.Fatalf("Parse: %v", err)
			}
			got, err := doc.RollType()
			if tc.wantMiss {
				if !errors.Is(err, services.ErrUnsupportedRollType) {
					t.Fatalf("expected unsupported roll type, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("RollType: %v", err)
			}
			if got != tc.want {
				t.Fatalf("RollType = %q, want %q", got, tc.want)
			}
		})
	}
}

func TestClientFetchClassifiesStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/hk155fw7898/iiif/manifest":
			w.Write([]byte(v2Manifest))
		case "/gone/iiif/manifest":
			http.NotFound(w, r)
		default:
			w.WriteHeader(http.StatusInternalServerError)
		}
	}))
	defer server.Close()

	client, err := manifest.New(server.URL)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	doc, raw, err := client.Fetch(context.Background(), "hk155fw7898")
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if len(raw) == 0 || doc.Title() == "" {
		t.Fatal("expected payload and title")
	}

	if _, _, err := client.Fetch(context.Background(), "gone"); !errors.Is(err, services.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	if _, _, err := client.Fetch(context.Background(), "broken"); !errors.Is(err, services.ErrDownload) {
		t.Fatalf("expected download error, got %v", err)
	}
}

func TestResolverCachesManifest(t *testing.T) {
	var hits atomic.Int64
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.Write([]byte(v2Manifest))
	}))
	defer server.Close()

	client, err := manifest.New(server.URL)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	lay := layout.New(t.TempDir())
	if err := lay.EnsureDirs(); err != nil {
		t.Fatalf("EnsureDirs: %v", err)
	}
	resolver := manifest.NewResolver(client, lay, nil)

	info, downloaded, err := resolver.Resolve(context.Background(), "hk155fw7898", false, "")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if !downloaded {
		t.Fatal("first resolve should download")
	}
	if info.Type != rolls.TypeWelteRed {
		t.Fatalf("Type = %q", info.Type)
	}
	if info.ImageURL == "" || info.Title == "" {
		t.Fatalf("incomplete info: %+v", info)
	}
	if _, err := os.Stat(lay.Path("hk155fw7898", layout.KindManifest)); err != nil {
		t.Fatalf("manifest not cached: %v", err)
	}

	_, downloaded, err = resolver.Resolve(context.Background(), "hk155fw7898", false, "")
	if err != nil {
		t.Fatalf("Resolve cached: %v", err)
	}
	if downloaded {
		t.Fatal("cached resolve should not download")
	}
	if hits.Load() != 1 {
		t.Fatalf("expected one download, got %d", hits.Load())
	}

	_, downloaded, err = resolver.Resolve(context.Background(), "hk155fw7898", true, "")
	if err != nil {
		t.Fatalf("Resolve redownload: %v", err)
	}
	if !downloaded {
		t.Fatal("forced resolve should download")
	}
	if hits.Load() != 2 {
		t.Fatalf("expected redownload, got %d hits", hits.Load())
	}
}

func TestResolverCorruptCacheRefetchReportsDownload(t *testing.T) {
	var hits atomic.Int64
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.Write([]byte(v2Manifest))
	}))
	defer server.Close()

	client, err := manifest.New(server.URL)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	lay := layout.New(t.TempDir())
	if err := lay.EnsureDirs(); err != nil {
		t.Fatalf("EnsureDirs: %v", err)
	}
	resolver := manifest.NewResolver(client, lay, nil)

	if _, _, err := resolver.Resolve(context.Background(), "hk155fw7898", false, ""); err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	testsupport.WriteFile(t, lay.Path("hk155fw7898", layout.KindManifest), "not json at all")

	info, downloaded, err := resolver.Resolve(context.Background(), "hk155fw7898", false, "")
	if err != nil {
		t.Fatalf("Resolve after corruption: %v", err)
	}
	if !downloaded {
		t.Fatal("corrupt cache refetch must report a download")
	}
	if hits.Load() != 2 {
		t.Fatalf("expected refetch, got %d hits", hits.Load())
	}
	if info.Type != rolls.TypeWelteRed {
		t.Fatalf("Type = %q", info.Type)
	}
	cached, err := os.ReadFile(lay.Path("hk155fw7898", layout.KindManifest))
	if err != nil {
		t.Fatalf("read repaired cache: %v", err)
	}
	if string(cached) == "not json at all" {
		t.Fatal("cache should have been rewritten")
	}
}

func TestResolverTypeOverride(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"label": "untyped roll", "sequences": [{"rendering": [{"@id": "https://stacks.example.org/x_gr.tiff", "format": "image/tiff"}]}]}`))
	}))
	defer server.Close()

	client, err := manifest.New(server.URL)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	lay := layout.New(t.TempDir())
	if err := lay.EnsureDirs(); err != nil {
		t.Fatalf("EnsureDirs: %v", err)
	}
	resolver := manifest.NewResolver(client, lay, nil)

	info, _, err := resolver.Resolve(context.Background(), "xy123ab4567", false, rolls.Type88Note)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if info.Type != rolls.Type88Note {
		t.Fatalf("Type = %q, want override", info.Type)
	}
}
