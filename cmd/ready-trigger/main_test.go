package main

import (
	"testing"

	"github.com/Lllllllleong/searchablepdf/internal/models"
)

func TestReadyRequest(t *testing.T) {
	req, ok := readyRequest("/mnt/containers", "searchable", models.GCSEvent{Bucket: "scans", Name: "batch-7/_READY"})
	if !ok {
		t.Fatal("readyRequest() ok = false")
	}
	if req.ContainerPath != "/mnt/containers/batch-7" || req.OutputPath != "/mnt/containers/batch-7/searchable" {
		t.Fatalf("readyRequest() = %+v", req)
	}

	for _, name := range []string{
		"_READY",
		"batch-7/Folder A/Image 1.png",
		"batch-7/_READY.tmp",
		"../../etc/_READY",
		"batch-7/../../_READY",
		"batch-7/../_READY",
	} {
		if _, ok := readyRequest("/mnt/containers", "searchable", models.GCSEvent{Name: name}); ok {
			t.Errorf("readyRequest(%q) ok = true", name)
		}
	}
}

func TestReadyRequestStaysInsideMountRoot(t *testing.T) {
	req, ok := readyRequest("/mnt/containers", "searchable", models.GCSEvent{Name: "batch-7/../batch-8/_READY"})
	if !ok || req.ContainerPath != "/mnt/containers/batch-8" {
		t.Fatalf("readyRequest() = %+v, %v", req, ok)
	}
	if _, ok := readyRequest("/mnt/containers", "searchable", models.GCSEvent{Name: "..batch/_READY"}); !ok {
		t.Fatal("readyRequest() rejected a prefix that only starts with dots")
	}
}
