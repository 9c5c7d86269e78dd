package report

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/Mindburn-Labs/briefcheck/pkg/config"
)

func TestFileSinkPutGet(t *testing.T) {
	root := filepath.Join(t.TempDir(), "Validaciones")
	s, err := NewFileSink(root)
	require.NoError(t, err)
	ctx := context.Background()

	doc := []map[string]any{{"segmento": 1, "nombreSegmento": "Año <1>"}}
	require.NoError(t, s.Put(ctx, "17", CategorySegments, doc))

	raw, err := s.Get("17", CategorySegments)
	require.NoError(t, err)
	assert.Equal(t, "[\n  {\n    \"nombreSegmento\": \"Año <1>\",\n    \"segmento\": 1\n  }\n]\n", string(raw))

	_, err = os.Stat(filepath.Join(root, "17", "validacion_segmentos.json.tmp"))
	assert.True(t, os.IsNotExist(err))

	_, err = s.Get("17", CategoryStages)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestFileSinkCampaignsSortedAndReset(t *testing.T) {
	s, err := NewFileSink(t.TempDir())
	require.NoError(t, err)
	ctx := context.Background()

	for _, id := range []string{"22", "17", "mesas", "18"} {
		require.NoError(t, s.Put(ctx, id, CategoryStages, []any{}))
	}
	require.NoError(t, os.WriteFile(filepath.Join(s.Root(), "stray.txt"), []byte("x"), 0o600))

	ids, err := s.Campaigns()
	require.NoError(t, err)
	assert.Equal(t, []string{"17", "18", "22", "mesas"}, ids)

	require.NoError(t, s.Reset())
	ids, err = s.Campaigns()
	require.NoError(t, err)
	assert.Empty(t, ids)
	assert.DirExists(t, s.Root())
}

func TestFileSinkRewriteIsByteIdentical(t *testing.T) {
	s, err := NewFileSink(t.TempDir())
	require.NoError(t, err)
	ctx := context.Background()
	doc := map[string]any{"status": "OK", "details": []string{"a", "b"}}

	require.NoError(t, s.Put(ctx, "17", "premios", doc))
	first, err := s.Get("17", "premios")
	require.NoError(t, err)
	require.NoError(t, s.Put(ctx, "17", "premios", doc))
	second, err := s.Get("17", "premios")
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

type fakeS3 struct {
	keys   []string
	bodies []string
	err    error
}

func (f *fakeS3) PutObject(_ context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	if f.err != nil {
		return nil, f.err
	}
	body, _ := io.ReadAll(in.Body)
	f.keys = append(f.keys, aws.ToString(in.Bucket)+"/"+aws.ToString(in.Key))
	f.bodies = append(f.bodies, string(body))
	return &s3.PutObjectOutput{}, nil
}

func TestS3SinkPut(t *testing.T) {
	fake := &fakeS3{}
	s := &S3Sink{client: fake, bucket: "brief", prefix: "qa/reports"}

	require.NoError(t, s.Put(context.Background(), "18", CategoryStages, []string{"x"}))
	assert.Equal(t, []string{"brief/qa/reports/18/validacion_etapas.json"}, fake.keys)
	assert.Equal(t, "[\n  \"x\"\n]\n", fake.bodies[0])

	fake.err = errors.New("access denied")
	err := s.Put(context.Background(), "18", CategoryStages, []string{"x"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "18/validacion_etapas.json")
}

type recordingSink struct {
	calls int
	err   error
}

func (r *recordingSink) Put(context.Context, string, string, any) error {
	r.calls++
	return r.err
}

func TestMultiSinkAttemptsAll(t *testing.T) {
	first := errors.New("first")
	a := &recordingSink{err: first}
	b := &recordingSink{err: errors.New("second")}
	c := &recordingSink{}

	err := MultiSink{a, b, c}.Put(context.Background(), "17", "etapas", nil)
	assert.ErrorIs(t, err, first)
	assert.Equal(t, []int{1, 1, 1}, []int{a.calls, b.calls, c.calls})
}

func TestFromConfigFilesOnly(t *testing.T) {
	cfg := &config.Config{ReportsDir: filepath.Join(t.TempDir(), "out")}
	sinks, err := FromConfig(context.Background(), cfg, zaptest.NewLogger(t))
	require.NoError(t, err)
	assert.Same(t, sinks.Files, sinks.All)
	assert.DirExists(t, cfg.ReportsDir)
}

func TestFromConfigGCSNeedsBuildTag(t *testing.T) {
	cfg := &config.Config{ReportsDir: t.TempDir(), GCS: config.GCSConfig{Bucket: "brief"}}
	_, err := FromConfig(context.Background(), cfg, zaptest.NewLogger(t))
	if err == nil {
		// Built with -tags gcp and credentials available.
		return
	}
	assert.True(t, strings.Contains(err.Error(), "gcs mirror"), err.Error())
}

func TestObjectKey(t *testing.T) {
	assert.Equal(t, "17/validacion_segmentos.json", ObjectKey("", "17", CategorySegments))
	assert.Equal(t, "p/17/validacion_fechas.json", ObjectKey("p/", "17", CategoryDates))
}
