package export

import (
	"bytes"
	"context"
	"encoding/csv"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/lherron/crmq/internal/domain"
)

type listFunc[T any] func(ctx context.Context, f domain.Filters, size int) ([]T, error)

func (l listFunc[T]) FetchAll(ctx context.Context, f domain.Filters, size int) ([]T, error) {
	return l(ctx, f, size)
}

func staticUsers(cands ...domain.Candidate) listFunc[domain.Candidate] {
	return func(context.Context, domain.Filters, int) ([]domain.Candidate, error) { return cands, nil }
}

func noApps() listFunc[domain.Application] {
	return func(context.Context, domain.Filters, int) ([]domain.Application, error) { return nil, nil }
}

type memSink struct {
	mu    sync.Mutex
	name  string
	ctype string
	body  []byte
}

func (m *memSink) Put(_ context.Context, name, contentType string, body []byte) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.name, m.ctype, m.body = name, contentType, append([]byte(nil), body...)
	return "mem://" + name, nil
}

func readCSV(t *testing.T, body []byte) [][]string {
	t.Helper()
	rows, err := csv.NewReader(bytes.NewReader(body)).ReadAll()
	require.NoError(t, err)
	return rows
}

func TestWriteCSVQuotesFreeText(t *testing.T) {
	recs := []domain.MergedRecord{{
		UserID:      "u-1",
		FullName:    `O'Brien, "Jay"`,
		PhoneNumber: "0091",
		Notes:       "line one\nline two",
		HasApplied:  true,
	}}
	var buf bytes.Buffer
	require.NoError(t, WriteCSV(&buf, MyActivityColumns, recs))

	out := buf.String()
	assert.Contains(t, out, `"O'Brien, ""Jay"""`)
	assert.Contains(t, out, `"0091"`)
	assert.Contains(t, out, `,u-1,`)
	assert.True(t, strings.HasPrefix(out, "S.No,User ID,Phone Number,"))

	rows := readCSV(t, buf.Bytes())
	require.Len(t, rows, 2)
	assert.Equal(t, Headers(MyActivityColumns), rows[0])
	assert.Equal(t, "1", rows[1][0])
	assert.Equal(t, `O'Brien, "Jay"`, rows[1][3])
	assert.Equal(t, "Y", rows[1][4])
	assert.Equal(t, "-", rows[1][5])
	assert.Equal(t, "line one\nline two", rows[1][9])
}

func TestUserColumns(t *testing.T) {
	intl := 2.0
	rec := domain.MergedRecord{
		UserID:                "u-1",
		CreatedAt:             "2026-01-02T03:04:05.000Z",
		Skills:                []string{"welding", "rigging"},
		Language:              &domain.Language{MotherTongue: "Hindi", Other: []string{"English"}},
		Location:              &domain.Location{City: "Pune", Country: "India"},
		DOB:                   "1990-05-01T00:00:00.000Z",
		LatestApplicationDate: "2026-02-01T10:00:00Z",
		InternationalExp:      &intl,
	}
	row := Row(UserColumns, 7, &rec)
	got := map[string]string{}
	for i, h := range Headers(UserColumns) {
		got[h] = row[i]
	}
	assert.Equal(t, "7", got["S.No"])
	assert.Equal(t, "2026-01-02 03:04:05", got["Created At"])
	assert.Equal(t, "welding, rigging", got["Skills"])
	assert.Equal(t, "Hindi | English", got["Languages"])
	assert.Equal(t, "Pune  India", got["Location"])
	assert.Equal(t, "1990-05-01", got["DOB"])
	assert.Equal(t, "N", got["Applied?"])
	assert.Equal(t, "2026-02-01", got["Latest App Date"])
}

func TestApplicationColumnsPreferSnapshot(t *testing.T) {
	rec := domain.MergedRecord{
		ID:       "a-1",
		UserID:   "u-1",
		JobTitle: "Welder",
		JobSnapshot: &domain.JobSnapshot{
			Title:   "Senior Welder",
			Company: domain.Company{Name: "Acme"},
			Salary:  &domain.Salary{Min: 1000, Max: 1500, Currency: "AED"},
		},
	}
	row := Row(ApplicationColumns, 1, &rec)
	assert.Equal(t, "a-1", row[0])
	assert.Equal(t, "Senior Welder", row[7])
	assert.Equal(t, "Acme", row[8])
	assert.Equal(t, "1000 - 1500 AED", row[9])
}

func TestFileName(t *testing.T) {
	assert.Equal(t, "crm-data-addressed.csv", FileName(domain.DatasetApplications, domain.SubsetAddressed, false, FormatCSV))
	assert.Equal(t, "crm-data-all.xlsx", FileName(domain.DatasetApplications, "", false, FormatXLSX))
	assert.Equal(t, "user-level-data.csv", FileName(domain.DatasetUsers, domain.SubsetAll, false, FormatCSV))
	assert.Equal(t, "my-user-activity.csv", FileName(domain.DatasetUsers, domain.SubsetAll, true, FormatCSV))
	assert.Equal(t, "my-app-activity.csv", FileName(domain.DatasetApplications, domain.SubsetAll, true, FormatCSV))
}

func TestExportSubsetAndLocalFilters(t *testing.T) {
	var gotFilters domain.Filters
	var gotSize int
	users := listFunc[domain.Candidate](func(_ context.Context, f domain.Filters, size int) ([]domain.Candidate, error) {
		gotFilters, gotSize = f, size
		return []domain.Candidate{
			{ID: "u-1", FullName: "Asha", CrmData: domain.CrmData{CallDisposition: "CONNECTED_INTERESTED"}},
			{ID: "u-2", FullName: "Ravi"},
			{ID: "u-3", FullName: "Asha Two"},
		}, nil
	})
	sink := &memSink{}
	e := New(users, noApps(), sink, nil, nil)

	res, err := e.Export(context.Background(), Request{
		Dataset: domain.DatasetUsers,
		Filters: domain.Filters{UserInfo: "asha", Country: "UAE"},
		Subset:  domain.SubsetUnaddressed,
	})
	require.NoError(t, err)

	assert.Equal(t, PageSize, gotSize)
	assert.Empty(t, gotFilters.UserInfo, "free text is applied locally for user-level data")
	assert.Equal(t, "UAE", gotFilters.Country)

	assert.Equal(t, 1, res.Rows)
	assert.Equal(t, "user-level-data.csv", res.Name)
	assert.Equal(t, "mem://user-level-data.csv", res.Location)
	assert.Equal(t, "text/csv; charset=utf-8", sink.ctype)

	rows := readCSV(t, sink.body)
	require.Len(t, rows, 2)
	assert.Equal(t, "u-3", rows[1][1])
}

func TestExportApplicationsKeepsServerTextFilter(t *testing.T) {
	var gotFilters domain.Filters
	apps := listFunc[domain.Application](func(_ context.Context, f domain.Filters, _ int) ([]domain.Application, error) {
		gotFilters = f
		// the server already applied the text filter; none of these match it
		return []domain.Application{
			{ID: "a-1", UserID: "u-1", FullName: "Ravi", CrmData: domain.CrmData{CallDisposition: "OFFER_ACCEPTED"}},
			{ID: "a-2", UserID: "u-2", FullName: "Meena"},
		}, nil
	})
	sink := &memSink{}
	e := New(staticUsers(), apps, sink, nil, nil)

	res, err := e.Export(context.Background(), Request{
		Dataset: domain.DatasetApplications,
		Filters: domain.Filters{UserInfo: "9876"},
		Subset:  domain.SubsetAddressed,
	})
	require.NoError(t, err)
	assert.Equal(t, "9876", gotFilters.UserInfo)
	assert.Equal(t, 1, res.Rows)
	assert.Equal(t, "crm-data-addressed.csv", res.Name)
}

func TestExportMine(t *testing.T) {
	var gotFilters domain.Filters
	users := listFunc[domain.Candidate](func(_ context.Context, f domain.Filters, _ int) ([]domain.Candidate, error) {
		gotFilters = f
		return []domain.Candidate{
			{ID: "u-1", CrmData: domain.CrmData{Assignee: "me@example.com"}},
			{ID: "u-2", CrmData: domain.CrmData{Assignee: "other@example.com"}},
		}, nil
	})
	sink := &memSink{}
	e := New(users, noApps(), sink, nil, nil)

	_, err := e.Export(context.Background(), Request{Dataset: domain.DatasetUsers, Mine: true})
	require.ErrorIs(t, err, domain.ErrNoIdentity)

	res, err := e.Export(context.Background(), Request{Dataset: domain.DatasetUsers, Mine: true, Actor: " me@example.com "})
	require.NoError(t, err)
	assert.Equal(t, "me@example.com", gotFilters.Assignee)
	assert.Equal(t, 1, res.Rows)
	assert.Equal(t, "my-user-activity.csv", res.Name)
	assert.Equal(t, Headers(MyActivityColumns), readCSV(t, sink.body)[0])
}

func TestExportSingleFlight(t *testing.T) {
	entered := make(chan struct{})
	release := make(chan struct{})
	users := listFunc[domain.Candidate](func(context.Context, domain.Filters, int) ([]domain.Candidate, error) {
		close(entered)
		<-release
		return nil, nil
	})
	e := New(users, noApps(), &memSink{}, nil, nil)

	done := make(chan error, 1)
	go func() {
		_, err := e.Export(context.Background(), Request{Dataset: domain.DatasetUsers})
		done <- err
	}()
	<-entered
	assert.True(t, e.Running())

	_, err := e.Export(context.Background(), Request{Dataset: domain.DatasetUsers})
	require.ErrorIs(t, err, domain.ErrExportInProgress)

	close(release)
	require.NoError(t, <-done)
	assert.False(t, e.Running())

	// the guard is released after a run
	_, err = e.Export(context.Background(), Request{Dataset: domain.DatasetUsers})
	require.NoError(t, err)
}

func TestExportValidation(t *testing.T) {
	e := New(staticUsers(), noApps(), &memSink{}, nil, nil)
	_, err := e.Export(context.Background(), Request{Dataset: "bogus"})
	assert.Error(t, err)
	_, err = e.Export(context.Background(), Request{Dataset: domain.DatasetUsers, Subset: "some"})
	assert.Error(t, err)

	_, err = ParseFormat("pdf")
	assert.Error(t, err)
	f, err := ParseFormat(" XLSX ")
	require.NoError(t, err)
	assert.Equal(t, FormatXLSX, f)
}

func TestExportXLSX(t *testing.T) {
	sink := &memSink{}
	e := New(staticUsers(domain.Candidate{ID: "u-1", FullName: `O'Brien, "Jay"`, PhoneNumber: "007"}), noApps(), sink, nil, nil)

	res, err := e.Export(context.Background(), Request{Dataset: domain.DatasetUsers, Format: FormatXLSX})
	require.NoError(t, err)
	assert.Equal(t, "user-level-data.xlsx", res.Name)

	f, err := excelize.OpenReader(bytes.NewReader(sink.body))
	require.NoError(t, err)
	defer f.Close()
	rows, err := f.GetRows(SheetName)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "S.No", rows[0][0])
	assert.Equal(t, "007", rows[1][3])
	assert.Equal(t, `O'Brien, "Jay"`, rows[1][4])
}

func TestDirSink(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "out")
	loc, err := DirSink{Dir: dir}.Put(context.Background(), "user-level-data.csv", "text/csv", []byte("a,b\n"))
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "user-level-data.csv"), loc)

	data, err := os.ReadFile(loc)
	require.NoError(t, err)
	assert.Equal(t, "a,b\n", string(data))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 1, "temp file left behind")
}

func TestWriterSink(t *testing.T) {
	var buf bytes.Buffer
	loc, err := WriterSink{W: &buf}.Put(context.Background(), "x.csv", "text/csv", []byte("hi"))
	require.NoError(t, err)
	assert.Equal(t, "-", loc)
	assert.Equal(t, "hi", buf.String())
}

// fakeS3 records PUT requests in path-style form (/bucket/key).
type fakeS3 struct {
	mu   sync.Mutex
	puts map[string][]byte
}

func (f *fakeS3) RoundTrip(req *http.Request) (*http.Response, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if req.Method != http.MethodPut {
		return &http.Response{StatusCode: 501, Body: io.NopCloser(bytes.NewReader(nil)), Header: http.Header{}}, nil
	}
	body, _ := io.ReadAll(req.Body)
	f.puts[req.URL.Path] = body
	return &http.Response{StatusCode: 200, Body: io.NopCloser(bytes.NewReader(nil)), Header: http.Header{"ETag": {`"etag"`}}}, nil
}

func TestS3Sink(t *testing.T) {
	rt := &fakeS3{puts: map[string][]byte{}}
	cfg, err := config.LoadDefaultConfig(context.Background(),
		config.WithRegion("us-east-1"),
		config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider("AKIA", "SECRET", "")),
	)
	require.NoError(t, err)
	client := s3.NewFromConfig(cfg, func(o *s3.Options) {
		o.BaseEndpoint = aws.String("https://mock.s3.local")
		o.HTTPClient = &http.Client{Transport: rt}
		o.UsePathStyle = true
	})

	sink := NewS3SinkFromClient(client, "exports", "/crm/")
	sink.now = func() time.Time { return time.Date(2026, 3, 4, 5, 6, 7, 0, time.UTC) }

	loc, err := sink.Put(context.Background(), "crm-data-all.csv", "text/csv", []byte("Application ID,User ID\n"))
	require.NoError(t, err)
	assert.Equal(t, "s3://exports/crm/crm-data-all-20260304T050607Z.csv", loc)

	body, ok := rt.puts["/exports/crm/crm-data-all-20260304T050607Z.csv"]
	require.True(t, ok, "puts = %v", rt.puts)
	// the SDK may wrap the payload in aws-chunked framing
	assert.Contains(t, string(body), "Application ID,User ID")
}

func TestNewS3SinkRequiresBucket(t *testing.T) {
	_, err := NewS3Sink(context.Background(), S3Config{})
	assert.Error(t, err)
}
