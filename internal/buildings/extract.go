package buildings

import (
	"context"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/place2dxf/internal/failure"
	"github.com/sells-group/place2dxf/internal/fetcher"
	"github.com/sells-group/place2dxf/internal/model"
	"github.com/sells-group/place2dxf/internal/projection"
)

const opExtract = "buildings: extract"

// DefaultExtractURL is the public Overture extract service.
const DefaultExtractURL = "https://extract.overturemaps.org"

// layerFormats lists the building layer encodings in preference order.
var layerFormats = []string{"gpkg", "shp"}

// ExtractOptions configures an ExtractSource.
type ExtractOptions struct {
	BaseURL         string
	Timeout         time.Duration
	DownloadTimeout time.Duration
	// TempDir is the parent of per-request scratch directories; empty
	// means the OS default.
	TempDir string
}

// ExtractSource asks the extract API for a bounding-box extract, downloads
// the ZIP container it points at and decodes the building layer inside.
type ExtractSource struct {
	fetcher fetcher.Fetcher
	utm     *projection.UTM
	opts    ExtractOptions
}

// NewExtractSource creates an ExtractSource.
func NewExtractSource(f fetcher.Fetcher, utm *projection.UTM, opts ExtractOptions) *ExtractSource {
	if opts.BaseURL == "" {
		opts.BaseURL = DefaultExtractURL
	}
	opts.BaseURL = strings.TrimRight(opts.BaseURL, "/")
	if opts.Timeout <= 0 {
		opts.Timeout = 20 * time.Second
	}
	if opts.DownloadTimeout <= 0 {
		opts.DownloadTimeout = 30 * time.Second
	}
	return &ExtractSource{fetcher: f, utm: utm, opts: opts}
}

// Name implements Source.
func (s *ExtractSource) Name() string { return "extract" }

// extractMeta is the metadata document. Per-format values are URLs; other
// fields of a layer entry are ignored.
type extractMeta struct {
	Layers map[string]map[string]any `json:"layers"`
}

func (s *ExtractSource) metaURL(bbox model.BBox) string {
	return s.opts.BaseURL + "/extract.json?bbox=" + bbox.XYString() + "&layers=buildings"
}

// Fetch implements Source.
func (s *ExtractSource) Fetch(ctx context.Context, bbox model.BBox) (*FetchResult, error) {
	metaURL := s.metaURL(bbox)
	zap.L().Info("buildings: requesting extract", zap.String("url", metaURL))

	var meta extractMeta
	mctx, cancel := context.WithTimeout(ctx, s.opts.Timeout)
	err := s.fetcher.GetJSON(mctx, metaURL, &meta)
	cancel()
	if err != nil {
		return nil, failure.Remote(opExtract, eris.Wrap(err, "metadata"))
	}

	fileURL, err := layerURL(metaURL, meta)
	if err != nil {
		return nil, failure.Remote(opExtract, err)
	}

	dir, err := os.MkdirTemp(s.opts.TempDir, "place2dxf-extract-*")
	if err != nil {
		return nil, failure.Remote(opExtract, eris.Wrap(err, "create scratch dir"))
	}
	defer os.RemoveAll(dir) //nolint:errcheck

	zipPath := filepath.Join(dir, "extract.zip")
	dctx, cancel := context.WithTimeout(ctx, s.opts.DownloadTimeout)
	n, err := s.fetcher.DownloadToFile(dctx, fileURL, zipPath)
	cancel()
	if err != nil {
		return nil, failure.Remote(opExtract, eris.Wrap(err, "download"))
	}
	zap.L().Debug("buildings: downloaded extract", zap.String("url", fileURL), zap.Int64("bytes", n))

	files, err := fetcher.ExtractZIP(zipPath, filepath.Join(dir, "contents"))
	if err != nil {
		return nil, failure.Remote(opExtract, err)
	}

	c := &collector{utm: s.utm}
	switch path := firstVectorLayer(files); strings.ToLower(filepath.Ext(path)) {
	case ".gpkg":
		err = readGeoPackage(ctx, path, c)
	case ".shp":
		err = readShapefile(path, c)
	default:
		return nil, failure.Remotef(opExtract, "no geopackage or shapefile in container")
	}
	if err != nil {
		return nil, failure.Remote(opExtract, err)
	}

	zap.L().Info("buildings: decoded extract",
		zap.Int("buildings", len(c.buildings)),
		zap.Int("skipped", c.skipped),
	)
	return c.result(s.Name()), nil
}

// layerURL picks the building layer's preferred format from meta and
// resolves it against the metadata URL.
func layerURL(metaURL string, meta extractMeta) (string, error) {
	layer, ok := meta.Layers["buildings"]
	if !ok {
		return "", eris.New("metadata has no buildings layer")
	}

	var raw string
	for _, format := range layerFormats {
		if v, ok := layer[format].(string); ok && v != "" {
			raw = v
			break
		}
	}
	if raw == "" {
		return "", eris.New("buildings layer has no gpkg or shp url")
	}

	base, err := url.Parse(metaURL)
	if err != nil {
		return "", eris.Wrap(err, "parse metadata url")
	}
	ref, err := url.Parse(raw)
	if err != nil {
		return "", eris.Wrapf(err, "parse layer url %q", raw)
	}
	return base.ResolveReference(ref).String(), nil
}

// firstVectorLayer returns the first .gpkg or .shp path in archive order.
func firstVectorLayer(files []string) string {
	for _, f := range files {
		switch strings.ToLower(filepath.Ext(f)) {
		case ".gpkg", ".shp":
			return f
		}
	}
	return ""
}
