package epub

import "testing"

func TestDetectCover(t *testing.T) {
	tests := []struct {
		name       string
		pkg        *Package
		wantID     string
		wantMethod string
	}{
		{
			name: "properties",
			pkg: &Package{
				Manifest: map[string]ManifestItem{
					"ch1":       {ID: "ch1", Href: "text/ch1.xhtml", MediaType: "application/xhtml+xml"},
					"cover-img": {ID: "cover-img", Href: "images/front.jpg", MediaType: "image/jpeg", Properties: []string{"cover-image"}},
				},
				ManifestOrder: []string{"ch1", "cover-img"},
			},
			wantID:     "cover-img",
			wantMethod: "properties",
		},
		{
			name: "meta",
			pkg: &Package{
				Metadata: Metadata{CoverID: "front"},
				Manifest: map[string]ManifestItem{
					"front": {ID: "front", Href: "images/front.jpg", MediaType: "image/jpeg"},
				},
				ManifestOrder: []string{"front"},
			},
			wantID:     "front",
			wantMethod: "meta",
		},
		{
			name: "guide",
			pkg: &Package{
				Manifest: map[string]ManifestItem{
					"front": {ID: "front", Href: "images/front.jpg", MediaType: "image/jpeg"},
				},
				ManifestOrder: []string{"front"},
				Guide:         []GuideReference{{Type: "cover", Href: "images/front.jpg"}},
			},
			wantID:     "front",
			wantMethod: "guide",
		},
		{
			name: "filename",
			pkg: &Package{
				Manifest: map[string]ManifestItem{
					"a": {ID: "a", Href: "images/a.png", MediaType: "image/png"},
					"b": {ID: "b", Href: "images/My_Cover.png", MediaType: "image/png"},
				},
				ManifestOrder: []string{"a", "b"},
			},
			wantID:     "b",
			wantMethod: "filename",
		},
		{
			name: "filename skips svg",
			pkg: &Package{
				Manifest: map[string]ManifestItem{
					"art":   {ID: "art", Href: "images/cover.svg", MediaType: "image/svg+xml"},
					"photo": {ID: "photo", Href: "images/cover.jpg", MediaType: "image/jpeg"},
				},
				ManifestOrder: []string{"art", "photo"},
			},
			wantID:     "photo",
			wantMethod: "filename",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			info := tt.pkg.DetectCover()
			if info == nil {
				t.Fatal("DetectCover() returned nil, want CoverInfo")
			}
			if info.Item.ID != tt.wantID {
				t.Errorf("Item.ID = %q, want %q", info.Item.ID, tt.wantID)
			}
			if info.DetectionMethod != tt.wantMethod {
				t.Errorf("DetectionMethod = %q, want %q", info.DetectionMethod, tt.wantMethod)
			}
		})
	}
}

func TestDetectCover_None(t *testing.T) {
	pkg := &Package{
		Manifest: map[string]ManifestItem{
			"ch1": {ID: "ch1", Href: "cover.xhtml", MediaType: "application/xhtml+xml"},
		},
		ManifestOrder: []string{"ch1"},
	}
	if info := pkg.DetectCover(); info != nil {
		t.Errorf("DetectCover() = %+v, want nil", info)
	}
}

func TestDetectCover_SVGOnly(t *testing.T) {
	pkg := &Package{
		Manifest: map[string]ManifestItem{
			"art": {ID: "art", Href: "images/cover.svg", MediaType: "image/svg+xml"},
		},
		ManifestOrder: []string{"art"},
		Guide:         []GuideReference{{Type: "cover", Href: "images/cover.svg"}},
	}
	if info := pkg.DetectCover(); info != nil {
		t.Errorf("DetectCover() = %+v, want nil for an SVG-only book", info)
	}
}
