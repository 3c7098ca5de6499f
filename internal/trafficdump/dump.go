package trafficdump

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"
)

// Section is one "=== NAME ===" block read back from a dump.
type Section struct {
	Name      string
	Head      []string
	Body      string
	Truncated bool
}

// Field returns the value of a key=value head line.
func (s Section) Field(key string) string {
	for _, l := range s.Head {
		if k, v, ok := strings.Cut(l, "="); ok && k == key {
			return strings.TrimSpace(v)
		}
	}
	return ""
}

type Dump struct {
	Path     string
	Sections []Section
}

// Reply is the JSON body the relay answered with.
type Reply struct {
	HTTPStatus   int    `json:"-"`
	Status       string `json:"status"`
	Message      string `json:"message"`
	Preview      string `json:"extracted_code_preview"`
	FullResponse string `json:"full_response"`
}

func ReadDump(path string) (*Dump, error) {
	f, err := os.Open(path) // #nosec G304 -- dumps are read from the configured dump dir.
	if err != nil {
		return nil, err
	}
	defer func() { _ = f.Close() }()
	d, err := parseDump(f)
	if err != nil {
		return nil, fmt.Errorf("read dump %s: %w", path, err)
	}
	d.Path = path
	return d, nil
}

func parseDump(r io.Reader) (*Dump, error) {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64<<10), 64<<20)

	d := &Dump{}
	var cur *Section
	var body []string
	inBody := false
	flush := func() {
		if cur == nil {
			return
		}
		for len(body) > 0 && body[len(body)-1] == "" {
			body = body[:len(body)-1]
		}
		if n := len(body); n > 0 && body[n-1] == truncatedMarker {
			cur.Truncated = true
			body = body[:n-1]
		}
		cur.Body = strings.Join(body, "\n")
		d.Sections = append(d.Sections, *cur)
	}

	for sc.Scan() {
		line := strings.TrimRight(sc.Text(), "\r")
		if name, ok := sectionName(line); ok {
			flush()
			cur, body, inBody = &Section{Name: name}, nil, false
			continue
		}
		switch {
		case cur == nil:
		case inBody:
			body = append(body, line)
		case line == "":
			inBody = true
		default:
			cur.Head = append(cur.Head, line)
		}
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	flush()
	return d, nil
}

func sectionName(line string) (string, bool) {
	if !strings.HasPrefix(line, "=== ") || !strings.HasSuffix(line, " ===") || len(line) <= 8 {
		return "", false
	}
	return line[4 : len(line)-4], true
}

func (d *Dump) Section(name string) (Section, bool) {
	for _, s := range d.Sections {
		if s.Name == name {
			return s, true
		}
	}
	return Section{}, false
}

func (d *Dump) Truncated() bool {
	for _, s := range d.Sections {
		if s.Truncated {
			return true
		}
	}
	return false
}

// Reply decodes the RELAY RESPONSE section. ok is false when the request never got that
// far or the body was cut by max_bytes.
func (d *Dump) Reply() (Reply, bool) {
	s, found := d.Section(sectionRelayResponse)
	if !found {
		return Reply{}, false
	}
	var rep Reply
	rep.HTTPStatus, _ = strconv.Atoi(s.Field("status"))
	if err := json.Unmarshal([]byte(s.Body), &rep); err != nil {
		return rep, false
	}
	return rep, true
}

// Prompt is the text sent to Gemini, or the raw request body when it no longer decodes.
func (d *Dump) Prompt() string {
	s, ok := d.Section(sectionUpstreamRequest)
	if !ok {
		return ""
	}
	var req struct {
		Contents []struct {
			Parts []struct {
				Text string `json:"text"`
			} `json:"parts"`
		} `json:"contents"`
	}
	if json.Unmarshal([]byte(s.Body), &req) != nil || len(req.Contents) == 0 || len(req.Contents[0].Parts) == 0 {
		return s.Body
	}
	return req.Contents[0].Parts[0].Text
}

// UpstreamStatus is the numeric code from the UPSTREAM RESPONSE status line.
func (d *Dump) UpstreamStatus() int {
	s, ok := d.Section(sectionUpstreamResponse)
	if !ok || len(s.Head) == 0 {
		return 0
	}
	code, _, _ := strings.Cut(s.Head[0], " ")
	n, _ := strconv.Atoi(code)
	return n
}

type Summary struct {
	Path     string
	FileName string
	ModTime  time.Time
	Size     int64

	Time      time.Time
	RequestID string
	ClientIP  string

	Model          string
	Outcome        string
	FinishReason   string
	Language       string
	UpstreamStatus int
	RelayStatus    int
	Message        string
	Truncated      bool
}

func (d *Dump) Summary() Summary {
	s := Summary{
		Path:           d.Path,
		FileName:       filepath.Base(d.Path),
		UpstreamStatus: d.UpstreamStatus(),
		Truncated:      d.Truncated(),
	}
	if meta, ok := d.Section(sectionMeta); ok {
		s.RequestID = meta.Field("request_id")
		s.ClientIP = meta.Field("client_ip")
		if ts, err := time.Parse(time.RFC3339, meta.Field("time")); err == nil {
			s.Time = ts
		}
	}
	if out, ok := d.Section(sectionOutcome); ok {
		s.Model = out.Field("model")
		s.Outcome = out.Field("outcome")
		s.FinishReason = out.Field("finish_reason")
		s.Language = out.Field("language")
	}
	rep, _ := d.Reply()
	s.RelayStatus = rep.HTTPStatus
	s.Message = rep.Message
	return s
}

// ParseSummary reads the dump at path. info, when given, fills the file fields and the
// time fallback.
func ParseSummary(path string, info fs.FileInfo) (Summary, error) {
	d, err := ReadDump(path)
	if err != nil {
		return Summary{}, err
	}
	s := d.Summary()
	if info != nil {
		s.ModTime, s.Size = info.ModTime(), info.Size()
	}
	if s.Time.IsZero() {
		s.Time = s.ModTime
	}
	return s, nil
}

type ListOptions struct {
	Dir   string
	Limit int
	// Outcome keeps only dumps whose OUTCOME section names it. Empty keeps all.
	Outcome string
}

const (
	defaultListLimit = 200
	maxListLimit     = 2000
)

// ListSummaries returns dumps under opts.Dir, newest first. A missing directory yields an
// empty list; an unreadable dump is listed with its file fields only.
func ListSummaries(opts ListOptions) ([]Summary, error) {
	dir := strings.TrimSpace(opts.Dir)
	if dir == "" {
		return nil, errors.New("dump dir is empty")
	}
	limit := min(opts.Limit, maxListLimit)
	if limit <= 0 {
		limit = defaultListLimit
	}

	files, err := dumpFiles(dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}

	out := make([]Summary, 0, min(limit, len(files)))
	for _, f := range files {
		if len(out) == limit {
			break
		}
		s, err := ParseSummary(f.path, f.info)
		if err != nil {
			s = Summary{Path: f.path, FileName: f.info.Name(), ModTime: f.info.ModTime(), Size: f.info.Size()}
		}
		if opts.Outcome != "" && s.Outcome != opts.Outcome {
			continue
		}
		out = append(out, s)
	}
	return out, nil
}

type dumpFile struct {
	path string
	info fs.FileInfo
}

func dumpFiles(dir string) ([]dumpFile, error) {
	var files []dumpFile
	err := filepath.WalkDir(dir, func(path string, e fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if e.IsDir() || filepath.Ext(e.Name()) != ".log" {
			return nil
		}
		info, err := e.Info()
		if err != nil {
			return err
		}
		files = append(files, dumpFile{path: path, info: info})
		return nil
	})
	sort.Slice(files, func(i, j int) bool {
		a, b := files[i].info, files[j].info
		if !a.ModTime().Equal(b.ModTime()) {
			return a.ModTime().After(b.ModTime())
		}
		return a.Name() > b.Name()
	})
	return files, err
}

// FormatRow renders s as one line for `dumps --list`.
func FormatRow(s Summary) string {
	ts := "-"
	if !s.Time.IsZero() {
		ts = s.Time.Format("2006-01-02 15:04:05")
	}
	rid := s.RequestID
	if rid == "" {
		rid = strings.TrimSuffix(s.FileName, filepath.Ext(s.FileName))
	}
	row := fmt.Sprintf("%s %s %-11s model=%s rid=%s", ts, statusText(s.RelayStatus), orDash(s.Outcome), orDash(s.Model), rid)
	if s.Message != "" {
		row += "  " + strconv.Quote(s.Message)
	}
	return row
}

func statusText(code int) string {
	if code == 0 {
		return "---"
	}
	return strconv.Itoa(code)
}

func orDash(s string) string {
	if s = strings.TrimSpace(s); s == "" {
		return "-"
	}
	return s
}
