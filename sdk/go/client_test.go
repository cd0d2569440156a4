package dmapi

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"dmscripts/internal/domain"
)

func TestDraftServicesFollowsNextLinks(t *testing.T) {
	var srvURL string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Bearer tok" {
			t.Errorf("authorization header = %q", got)
		}
		if r.URL.Path != "/draft-services/framework/g-cloud-12" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if r.URL.Query().Get("supplier_id") != "42" {
			t.Errorf("supplier_id = %q", r.URL.Query().Get("supplier_id"))
		}
		w.Header().Set("Content-Type", "application/json")
		if r.URL.Query().Get("page") == "2" {
			io.WriteString(w, `{"services":[{"id":3,"status":"not-submitted"}],"links":{}}`)
			return
		}
		json.NewEncoder(w).Encode(map[string]any{
			"services": []map[string]any{{"id": 1, "status": "submitted"}, {"id": 2, "status": "submitted"}},
			"links":    map[string]string{"next": srvURL + "/draft-services/framework/g-cloud-12?supplier_id=42&page=2"},
		})
	}))
	defer srv.Close()
	srvURL = srv.URL

	c := New(srv.URL, "tok")
	services, err := c.FindDraftServicesByFramework(context.Background(), "g-cloud-12", 42)
	if err != nil {
		t.Fatalf("find draft services: %v", err)
	}
	if len(services) != 3 {
		t.Fatalf("expected 3 services across pages, got %d", len(services))
	}
	if services[2].Status != "not-submitted" {
		t.Fatalf("unexpected status %q", services[2].Status)
	}
}

func TestSupplierFrameworkInfoDecodesTriState(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/suppliers/1/frameworks/g-cloud-12":
			io.WriteString(w, `{"frameworkInterest":{"supplierId":1,"frameworkSlug":"g-cloud-12","onFramework":null,"declaration":{"status":"complete"}}}`)
		case "/suppliers/2/frameworks/g-cloud-12":
			io.WriteString(w, `{"frameworkInterest":{"supplierId":2,"frameworkSlug":"g-cloud-12","onFramework":false,"declaration":{}}}`)
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	c := New(srv.URL, "tok")
	sf, err := c.GetSupplierFrameworkInfo(context.Background(), 1, "g-cloud-12")
	if err != nil {
		t.Fatal(err)
	}
	if sf.OnFramework != domain.OnFrameworkUnset || sf.Declaration.Status() != "complete" {
		t.Fatalf("unexpected interest %+v", sf)
	}
	sf, err = c.GetSupplierFrameworkInfo(context.Background(), 2, "g-cloud-12")
	if err != nil {
		t.Fatal(err)
	}
	if sf.OnFramework != domain.OnFrameworkFailed {
		t.Fatalf("expected failed, got %s", sf.OnFramework)
	}
}

func TestSetFrameworkResultBody(t *testing.T) {
	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/suppliers/7/frameworks/g-cloud-12" {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode body: %v", err)
		}
		io.WriteString(w, `{"frameworkInterest":{}}`)
	}))
	defer srv.Close()

	if err := New(srv.URL, "tok").SetFrameworkResult(context.Background(), 7, "g-cloud-12", true, "script"); err != nil {
		t.Fatal(err)
	}
	fi, _ := got["frameworkInterest"].(map[string]any)
	if fi["onFramework"] != true || got["updated_by"] != "script" {
		t.Fatalf("unexpected body %v", got)
	}
}

func TestErrorsCarryStatusAndMessage(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		io.WriteString(w, `{"error":"Invalid framework"}`)
	}))
	defer srv.Close()

	_, err := New(srv.URL, "tok").GetInterestedSuppliers(context.Background(), "nope")
	var he *HTTPError
	if !errors.As(err, &he) {
		t.Fatalf("expected HTTPError, got %v", err)
	}
	if he.StatusCode != http.StatusBadRequest || he.Message != "Invalid framework" {
		t.Fatalf("unexpected error %+v", he)
	}
	if he.Error() != "Invalid framework (status: 400)" {
		t.Fatalf("unexpected message %q", he.Error())
	}
}

func TestTransportFailureIs503(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := srv.URL
	srv.Close()

	err := New(url, "tok").SetFrameworkResult(context.Background(), 1, "g-cloud-12", false, "x")
	if StatusCode(err) != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %v", err)
	}
	if err.Error() != "Request failed (status: 503)" {
		t.Fatalf("unexpected message %q", err.Error())
	}
}

func TestGetUserByEmailMissing(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		io.WriteString(w, `{"error":"No user with email"}`)
	}))
	defer srv.Close()

	u, err := New(srv.URL, "tok").GetUserByEmail(context.Background(), "nobody@example.com")
	if err != nil {
		t.Fatalf("expected nil error for 404, got %v", err)
	}
	if u != nil {
		t.Fatalf("expected nil user, got %+v", u)
	}
}
