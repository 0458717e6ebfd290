package web

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/ritzau/neural-portfolio/pkg/camera"
	"github.com/ritzau/neural-portfolio/pkg/layout"
	"github.com/ritzau/neural-portfolio/pkg/metrics"
	"github.com/ritzau/neural-portfolio/pkg/model"
	"github.com/ritzau/neural-portfolio/pkg/positions"
	"github.com/ritzau/neural-portfolio/pkg/pubsub"
	"github.com/ritzau/neural-portfolio/pkg/scene"
	"gonum.org/v1/gonum/spatial/r3"
)

const chainJSON = `{"nodes": [
	{"id": "A", "type": "main", "label": "Me", "connections": []},
	{"id": "B", "type": "project", "label": "Project", "connections": ["A"]},
	{"id": "C", "type": "skill", "label": "Go", "connections": ["B"]}
]}`

type fixture struct {
	server *httptest.Server
	scene  *scene.Scene
	srv    *Server
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	g, err := model.ParseJSON([]byte(chainJSON))
	if err != nil {
		t.Fatalf("ParseJSON() error = %v", err)
	}

	pub := pubsub.NewScenePublisher()
	t.Cleanup(func() { pub.Close() })
	collector := metrics.NewCollector("test")

	sc, err := scene.New(g, pub, collector, &scene.Options{Layout: layout.Options{Seed: 1}})
	if err != nil {
		t.Fatalf("scene.New() error = %v", err)
	}
	srv := NewServer(sc, pub, collector)
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return &fixture{server: ts, scene: sc, srv: srv}
}

func (f *fixture) do(t *testing.T, method, path, body string) *http.Response {
	t.Helper()
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req, err := http.NewRequest(method, f.server.URL+path, r)
	if err != nil {
		t.Fatal(err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func decode(t *testing.T, resp *http.Response, v interface{}) {
	t.Helper()
	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
}

func TestGraphIsNormalized(t *testing.T) {
	f := newFixture(t)
	resp := f.do(t, "GET", "/api/graph", "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	var g struct {
		Nodes []model.Node `json:"nodes"`
	}
	decode(t, resp, &g)
	if len(g.Nodes) != 3 {
		t.Fatalf("got %d nodes", len(g.Nodes))
	}
	if got := g.Nodes[1].Connections; len(got) != 2 || got[0] != "A" || got[1] != "C" {
		t.Errorf("B connections = %v, want [A C]", got)
	}
}

func TestPositionsPinMainNode(t *testing.T) {
	f := newFixture(t)
	var pos map[string]positions.Point
	decode(t, f.do(t, "GET", "/api/positions", ""), &pos)
	if len(pos) != 3 || pos["A"] != (positions.Point{}) {
		t.Errorf("positions = %v", pos)
	}
}

func TestVectorsUseLowercaseKeys(t *testing.T) {
	f := newFixture(t)
	for _, path := range []string{"/api/positions", "/api/edges", "/api/camera"} {
		body, err := io.ReadAll(f.do(t, "GET", path, "").Body)
		if err != nil {
			t.Fatal(err)
		}
		if !bytes.Contains(body, []byte(`"x":`)) || bytes.Contains(body, []byte(`"X":`)) {
			t.Errorf("%s vectors not lowercase: %s", path, body)
		}
	}
}

func TestFilterResolvesIndirectEdges(t *testing.T) {
	f := newFixture(t)

	resp := f.do(t, "PUT", "/api/filter", `{"visible": "main,skill"}`)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	var edges EdgesResponse
	decode(t, resp, &edges)
	if edges.Direct != 0 || edges.Indirect != 1 || edges.Edges[0].Source != "A" || edges.Edges[0].Target != "C" {
		t.Errorf("edges = %+v, want one indirect A-C edge", edges)
	}

	var filter FilterRequest
	decode(t, f.do(t, "GET", "/api/filter", ""), &filter)
	if filter.Visible != "main,skill" {
		t.Errorf("filter = %q", filter.Visible)
	}

	if resp := f.do(t, "PUT", "/api/filter", `{"visible": "main,planet"}`); resp.StatusCode != http.StatusBadRequest {
		t.Errorf("unknown type status = %d, want 400", resp.StatusCode)
	}
}

func TestSelectAndCamera(t *testing.T) {
	f := newFixture(t)

	if resp := f.do(t, "POST", "/api/select/nope", ""); resp.StatusCode != http.StatusNotFound {
		t.Errorf("unknown node status = %d, want 404", resp.StatusCode)
	}

	resp := f.do(t, "POST", "/api/select/B", "")
	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("select status = %d", resp.StatusCode)
	}
	var cam CameraResponse
	decode(t, resp, &cam)
	if cam.State != "transiting" || cam.InputEnabled {
		t.Errorf("camera = %+v, want transiting with input disabled", cam)
	}

	pose, _ := json.Marshal(camera.Pose{Position: r3.Vec{Z: 10}})
	if resp := f.do(t, "POST", "/api/camera", string(pose)); resp.StatusCode != http.StatusConflict {
		t.Errorf("camera input while transiting status = %d, want 409", resp.StatusCode)
	}

	if resp := f.do(t, "POST", "/api/jump/C", ""); resp.StatusCode != http.StatusOK {
		t.Errorf("jump status = %d", resp.StatusCode)
	}
	if resp := f.do(t, "DELETE", "/api/detail", ""); resp.StatusCode != http.StatusNoContent {
		t.Errorf("close detail status = %d", resp.StatusCode)
	}
}

func TestCameraInputWhenIdle(t *testing.T) {
	f := newFixture(t)
	want := camera.Pose{Position: r3.Vec{X: 1, Y: 2, Z: 3}}
	body, _ := json.Marshal(want)

	resp := f.do(t, "POST", "/api/camera", string(body))
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	var cam CameraResponse
	decode(t, resp, &cam)
	if cam.Pose != want {
		t.Errorf("pose = %+v, want %+v", cam.Pose, want)
	}
}

func TestPointer(t *testing.T) {
	f := newFixture(t)
	if resp := f.do(t, "POST", "/api/pointer", `{"kind": "down"}`); resp.StatusCode != http.StatusBadRequest {
		t.Errorf("down without node status = %d, want 400", resp.StatusCode)
	}
	if resp := f.do(t, "POST", "/api/pointer", `{"kind": "enter", "nodeId": "C"}`); resp.StatusCode != http.StatusNoContent {
		t.Errorf("enter status = %d, want 204", resp.StatusCode)
	}
	var edges EdgesResponse
	decode(t, f.do(t, "GET", "/api/edges", ""), &edges)
	for _, e := range edges.Edges {
		if e.Highlighted != (e.Source == "C" || e.Target == "C") {
			t.Errorf("edge %s-%s highlighted = %v", e.Source, e.Target, e.Highlighted)
		}
	}
}

func TestReload(t *testing.T) {
	f := newFixture(t)

	relabeled := strings.Replace(chainJSON, `"Go"`, `"Golang"`, 1)
	resp := f.do(t, "POST", "/api/layout", relabeled)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	var res LayoutResponse
	decode(t, resp, &res)
	if !res.Reused {
		t.Error("label change recomputed the layout")
	}

	if resp := f.do(t, "POST", "/api/layout", `{"nodes": [`); resp.StatusCode != http.StatusBadRequest {
		t.Errorf("malformed body status = %d, want 400", resp.StatusCode)
	}
	noMain := `{"nodes": [{"id": "x", "type": "skill"}]}`
	if resp := f.do(t, "POST", "/api/layout", noMain); resp.StatusCode != http.StatusUnprocessableEntity {
		t.Errorf("graph without main node status = %d, want 422", resp.StatusCode)
	}
}

func TestRelayout(t *testing.T) {
	f := newFixture(t)
	before, _ := f.scene.Store().Get("C")
	w, err := f.scene.Store().Claim("C", "test")
	if err != nil {
		t.Fatal(err)
	}
	w.Set(r3.Vec{X: 42})
	w.Release()

	resp := f.do(t, "POST", "/api/relayout", "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	var res LayoutResponse
	decode(t, resp, &res)
	if res.Reused {
		t.Error("relayout reused the memoized layout")
	}
	if got, _ := f.scene.Store().Get("C"); got != before {
		t.Errorf("C at %v after relayout, want %v", got, before)
	}
}

func TestSubscribe(t *testing.T) {
	f := newFixture(t)

	if resp := f.do(t, "GET", "/api/subscribe/weather", ""); resp.StatusCode != http.StatusNotFound {
		t.Errorf("unknown topic status = %d, want 404", resp.StatusCode)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	req, _ := http.NewRequestWithContext(ctx, "GET", f.server.URL+"/api/subscribe/layout", nil)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if ct := resp.Header.Get("Content-Type"); ct != "text/event-stream" {
		t.Errorf("Content-Type = %q", ct)
	}

	scanner := bufio.NewScanner(resp.Body)
	for scanner.Scan() {
		line := scanner.Text()
		if !strings.HasPrefix(line, "data: ") {
			continue
		}
		var ev pubsub.Event
		if err := json.Unmarshal([]byte(strings.TrimPrefix(line, "data: ")), &ev); err != nil {
			t.Fatal(err)
		}
		if ev.Topic != pubsub.TopicLayout || ev.Type != "computed" {
			t.Errorf("replayed event = %s/%s, want layout/computed", ev.Topic, ev.Type)
		}
		return
	}
	t.Fatal("no layout event replayed")
}

func TestMetricsAndStatic(t *testing.T) {
	f := newFixture(t)
	f.do(t, "GET", "/api/layout", "")

	body, _ := io.ReadAll(f.do(t, "GET", "/metrics", "").Body)
	for _, want := range []string{"test_layout_runs_total 1", `route="/api/layout"`} {
		if !bytes.Contains(body, []byte(want)) {
			t.Errorf("metrics missing %q", want)
		}
	}

	resp := f.do(t, "GET", "/", "")
	page, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK || !bytes.Contains(page, []byte("Neural Portfolio")) {
		t.Errorf("index status = %d", resp.StatusCode)
	}
}

func readUntil(t *testing.T, conn *websocket.Conn, topic, eventType string) pubsub.Event {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	for {
		var ev pubsub.Event
		if err := conn.ReadJSON(&ev); err != nil {
			t.Fatalf("waiting for %s/%s: %v", topic, eventType, err)
		}
		if ev.Topic == topic && ev.Type == eventType {
			return ev
		}
	}
}

func TestSession(t *testing.T) {
	f := newFixture(t)
	url := "ws" + strings.TrimPrefix(f.server.URL, "http") + "/api/session"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("Dial() error = %v", err)
	}
	defer conn.Close()

	hello := readUntil(t, conn, TopicSession, "established")
	var info map[string]string
	json.Unmarshal(hello.Data, &info)
	if info["sessionId"] == "" {
		t.Error("session id missing")
	}

	if err := conn.WriteJSON(Command{Type: "select", NodeID: "B"}); err != nil {
		t.Fatal(err)
	}
	ev := readUntil(t, conn, pubsub.TopicSelection, "selected")
	var sel pubsub.SelectionEvent
	json.Unmarshal(ev.Data, &sel)
	if sel.NodeID != "B" {
		t.Errorf("selected %q, want B", sel.NodeID)
	}

	conn.WriteJSON(Command{Type: "pointer", Pointer: &scene.PointerEvent{Kind: "wiggle"}})
	readUntil(t, conn, TopicSession, "error")

	conn.WriteJSON(Command{Type: "teleport"})
	readUntil(t, conn, TopicSession, "error")

	if f.srv.sessions.Len() != 1 {
		t.Errorf("live sessions = %d, want 1", f.srv.sessions.Len())
	}
}

func TestSessionCloseReleasesDrag(t *testing.T) {
	f := newFixture(t)
	url := "ws" + strings.TrimPrefix(f.server.URL, "http") + "/api/session"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("Dial() error = %v", err)
	}
	readUntil(t, conn, TopicSession, "established")

	posB, _ := f.scene.Store().Get("B")
	at, ok := camera.DefaultProjection.Project(f.scene.Camera().Pose(), posB)
	if !ok {
		t.Fatal("B is not in front of the camera")
	}
	step := 0.1
	if at.X > 0 {
		step = -step
	}
	conn.WriteJSON(Command{Type: "pointer", Pointer: &scene.PointerEvent{Kind: scene.PointerDown, NodeID: "B", X: at.X, Y: at.Y}})
	conn.WriteJSON(Command{Type: "pointer", Pointer: &scene.PointerEvent{Kind: scene.PointerMove, X: at.X + step, Y: at.Y}})

	deadline := time.Now().Add(2 * time.Second)
	for {
		if _, held := f.scene.Store().Owner("B"); held {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("drag never claimed B")
		}
		time.Sleep(5 * time.Millisecond)
	}
	conn.Close()

	deadline = time.Now().Add(2 * time.Second)
	for {
		if _, held := f.scene.Store().Owner("B"); !held {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("B still claimed after the session closed")
		}
		time.Sleep(5 * time.Millisecond)
	}

	if err := f.scene.Pointer(scene.PointerEvent{Kind: scene.PointerEnter, NodeID: "C"}); err != nil {
		t.Fatal(err)
	}
	frame, err := f.scene.Tick(16 * time.Millisecond)
	if err != nil {
		t.Fatal(err)
	}
	if frame.Hovered != "C" {
		t.Errorf("hovered = %q after close, want C", frame.Hovered)
	}
}
