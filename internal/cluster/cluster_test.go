package cluster

import (
	"fmt"
	"math/rand"
	"reflect"
	"sort"
	"testing"

	"github.com/mr1hm/go-citymap/internal/geocode"
	"github.com/mr1hm/go-citymap/internal/models"
)

func testFeatures(n int, seed int64) []models.PointFeature {
	rng := rand.New(rand.NewSource(seed))
	features := make([]models.PointFeature, n)
	for i := range features {
		features[i] = models.PointFeature{
			Category: models.CategoryIncident,
			Coordinates: models.Coordinates{
				Latitude:  8 + rng.Float64()*28,
				Longitude: 68 + rng.Float64()*29,
			},
			Ref: models.SourceRef{Layer: models.LayerIncidents, ID: fmt.Sprintf("inc-%d", i)},
		}
	}
	return features
}

func hyderabadFeatures(n int) []models.PointFeature {
	features := make([]models.PointFeature, n)
	for i := range features {
		id := fmt.Sprintf("svc-%d", i+1)
		features[i] = models.PointFeature{
			Category:    models.CategoryHospital,
			Coordinates: geocode.CoordFromID(id),
			Ref:         models.SourceRef{Layer: models.LayerServices, ID: id},
		}
	}
	return features
}

func countInBox(features []models.PointFeature, bbox models.BoundingBox) int {
	n := 0
	for _, f := range features {
		if bbox.Contains(f.Coordinates) {
			n++
		}
	}
	return n
}

func totalCount(results []Result) int {
	total := 0
	for _, r := range results {
		total += r.Count
	}
	return total
}

func TestQuery_EmptyIndex(t *testing.T) {
	idx := Build(nil, DefaultOptions())

	results := idx.Query(models.NewBoundingBox(-180, -85, 180, 85), 5)
	if len(results) != 0 {
		t.Errorf("expected no results, got %d", len(results))
	}
	if idx.Len() != 0 {
		t.Errorf("expected empty index, got %d", idx.Len())
	}
}

func TestQuery_CountsMatchFeaturesInBox(t *testing.T) {
	features := testFeatures(2000, 42)
	idx := Build(features, DefaultOptions())

	boxes := []models.BoundingBox{
		models.NewBoundingBox(68, 8, 97, 36),
		models.NewBoundingBox(72, 15, 80, 20),
		models.NewBoundingBox(77.1, 28.2, 77.9, 29.3),
		models.NewBoundingBox(-180, -85, 180, 85),
		models.NewBoundingBox(90, 30, 96, 35),
	}

	for _, bbox := range boxes {
		want := countInBox(features, bbox)
		for zoom := 0; zoom <= 17; zoom++ {
			results := idx.Query(bbox, zoom)
			if got := totalCount(results); got != want {
				t.Errorf("bbox %+v zoom %d: expected total count %d, got %d", bbox, zoom, want, got)
			}
			for _, r := range results {
				if r.Count == 1 && r.Feature == nil {
					t.Errorf("single result %s missing feature", r.ID)
				}
				if r.Count > 1 && r.Feature != nil {
					t.Errorf("cluster %s should not carry a feature", r.ID)
				}
			}
		}
	}
}

func TestQuery_NoIntersectionIsEmpty(t *testing.T) {
	idx := Build(testFeatures(300, 7), DefaultOptions())

	results := idx.Query(models.NewBoundingBox(-120, 30, -100, 45), 4)
	if len(results) != 0 {
		t.Errorf("expected no results outside the data, got %d", len(results))
	}
}

func TestQuery_Idempotent(t *testing.T) {
	idx := Build(testFeatures(800, 3), DefaultOptions())
	bbox := models.NewBoundingBox(70, 10, 90, 30)

	first := idx.Query(bbox, 6)
	second := idx.Query(bbox, 6)
	if !reflect.DeepEqual(first, second) {
		t.Error("expected identical results for identical queries")
	}

	ids := make(map[string]bool, len(first))
	for _, r := range first {
		if ids[r.ID] {
			t.Errorf("duplicate result id %s", r.ID)
		}
		ids[r.ID] = true
	}
}

func TestQuery_ZoomControlsMerging(t *testing.T) {
	features := hyderabadFeatures(8)
	idx := Build(features, DefaultOptions())
	bbox := models.NewBoundingBox(78.3, 17.2, 78.9, 17.8)

	low := idx.Query(bbox, 0)
	if len(low) != 1 || low[0].Count != 8 {
		t.Fatalf("expected one cluster of 8 at zoom 0, got %+v", low)
	}
	if !bbox.Contains(low[0].Coordinates) {
		t.Errorf("expected centroid %v inside bbox", low[0].Coordinates)
	}

	high := idx.Query(bbox, 17)
	if len(high) != 8 {
		t.Fatalf("expected 8 single points at zoom 17, got %d", len(high))
	}
	for _, r := range high {
		if r.IsCluster() {
			t.Errorf("expected no clusters at zoom 17, got %s with %d", r.ID, r.Count)
		}
	}
}

func TestQuery_ZoomIsClamped(t *testing.T) {
	idx := Build(hyderabadFeatures(4), Options{MinZoom: 3, MaxZoom: 12})
	bbox := models.NewBoundingBox(78.3, 17.2, 78.9, 17.8)

	for _, r := range idx.Query(bbox, 30) {
		if r.Zoom != 12 {
			t.Errorf("expected zoom clamped to 12, got %d", r.Zoom)
		}
	}
	for _, r := range idx.Query(bbox, -4) {
		if r.Zoom != 3 {
			t.Errorf("expected zoom clamped to 3, got %d", r.Zoom)
		}
	}
}

func TestLeaves_MatchClusterCount(t *testing.T) {
	features := testFeatures(500, 11)
	idx := Build(features, DefaultOptions())
	bbox := models.NewBoundingBox(68, 8, 97, 36)

	for _, r := range idx.Query(bbox, 3) {
		leaves := idx.Leaves(r)
		if len(leaves) != r.Count {
			t.Errorf("result %s: expected %d leaves, got %d", r.ID, r.Count, len(leaves))
		}
		for _, l := range leaves {
			if !bbox.Contains(l.Coordinates) {
				t.Errorf("leaf %s outside bbox", l.Ref.ID)
			}
		}
	}
}

func TestExpansionZoom_SplitsCluster(t *testing.T) {
	features := []models.PointFeature{
		{Coordinates: models.Coordinates{Latitude: 17.40, Longitude: 78.40}, Ref: models.SourceRef{ID: "a"}},
		{Coordinates: models.Coordinates{Latitude: 17.41, Longitude: 78.41}, Ref: models.SourceRef{ID: "b"}},
	}
	idx := Build(features, DefaultOptions())
	bbox := models.NewBoundingBox(78, 17, 79, 18)

	results := idx.Query(bbox, 2)
	if len(results) != 1 || !results[0].IsCluster() {
		t.Fatalf("expected a single cluster at zoom 2, got %+v", results)
	}

	z := idx.ExpansionZoom(results[0])
	if z <= 2 {
		t.Fatalf("expected expansion zoom above 2, got %d", z)
	}
	if got := len(idx.Query(bbox, z)); got != 2 {
		t.Errorf("expected 2 results at expansion zoom %d, got %d", z, got)
	}
	if got := len(idx.Query(bbox, z-1)); got != 1 {
		t.Errorf("expected still clustered one zoom below expansion, got %d results", got)
	}
}

func TestExpansionZoom_IdenticalPointsNeverSplit(t *testing.T) {
	c := models.Coordinates{Latitude: 17.4, Longitude: 78.5}
	features := []models.PointFeature{
		{Coordinates: c, Ref: models.SourceRef{ID: "a"}},
		{Coordinates: c, Ref: models.SourceRef{ID: "b"}},
		{Coordinates: c, Ref: models.SourceRef{ID: "c"}},
	}
	idx := Build(features, DefaultOptions())

	results := idx.Query(models.NewBoundingBox(78, 17, 79, 18), 17)
	if len(results) != 1 || results[0].Count != 3 {
		t.Fatalf("expected a cluster of 3 even at max zoom, got %+v", results)
	}
	if z := idx.ExpansionZoom(results[0]); z != 17 {
		t.Errorf("expected expansion zoom 17, got %d", z)
	}
}

func TestOptions_Normalize(t *testing.T) {
	o := Options{MinZoom: 30, MaxZoom: 40, MinPoints: 1}.normalize()

	if o.MaxZoom != maxSupportedZoom {
		t.Errorf("expected max zoom %d, got %d", maxSupportedZoom, o.MaxZoom)
	}
	if o.MinZoom != o.MaxZoom {
		t.Errorf("expected min zoom capped to max zoom, got %d", o.MinZoom)
	}
	if o.MinPoints != 2 || o.Radius != 60 || o.Extent != 512 || o.NodeSize != 64 {
		t.Errorf("unexpected defaults: %+v", o)
	}
}

func TestKDTree_MatchesBruteForce(t *testing.T) {
	rng := rand.New(rand.NewSource(99))
	n := 1000
	ids := make([]int, n)
	xs := make([]float64, n)
	ys := make([]float64, n)
	for i := 0; i < n; i++ {
		ids[i] = i
		xs[i] = rng.Float64()
		ys[i] = rng.Float64()
	}
	tree := newKDTree(ids, xs, ys, 4)

	got := tree.rangeQuery(0.2, 0.3, 0.6, 0.5)
	var want []int
	for i := 0; i < n; i++ {
		if xs[i] >= 0.2 && xs[i] <= 0.6 && ys[i] >= 0.3 && ys[i] <= 0.5 {
			want = append(want, i)
		}
	}
	sort.Ints(got)
	if !reflect.DeepEqual(got, want) {
		t.Errorf("range query mismatch: expected %d ids, got %d", len(want), len(got))
	}

	got = tree.within(0.5, 0.5, 0.1)
	want = want[:0]
	for i := 0; i < n; i++ {
		if sqDist(xs[i], ys[i], 0.5, 0.5) <= 0.01 {
			want = append(want, i)
		}
	}
	sort.Ints(got)
	if !reflect.DeepEqual(got, want) {
		t.Errorf("within query mismatch: expected %d ids, got %d", len(want), len(got))
	}
}

func TestBuild_KeysUniqueWithoutIDs(t *testing.T) {
	coords := models.Coordinates{Latitude: 17.40, Longitude: 78.40}
	features := []models.PointFeature{
		{Coordinates: coords},
		{Coordinates: coords, Ref: models.SourceRef{ID: "s-1"}},
		{Coordinates: coords},
		{Coordinates: coords, Ref: models.SourceRef{ID: "s-1"}},
		{Coordinates: coords, Ref: models.SourceRef{ID: "#0"}},
	}
	idx := Build(features, DefaultOptions())

	seen := map[string]bool{}
	for _, f := range idx.features {
		if f.Key == "" || seen[f.Key] {
			t.Errorf("feature %+v has an empty or repeated key", f)
		}
		seen[f.Key] = true
	}
	if idx.features[1].Key != "s-1" || idx.features[4].Key != "#0" {
		t.Errorf("expected source ids to be kept as keys, got %q and %q", idx.features[1].Key, idx.features[4].Key)
	}
	if features[0].Key != "" {
		t.Error("expected the input slice to be left untouched")
	}

	// identical points never merge at max zoom with MinPoints above the count
	opts := DefaultOptions()
	opts.MinPoints = 10
	ids := map[string]bool{}
	for _, r := range Build(features, opts).Query(models.NewBoundingBox(78, 17, 79, 18), 17) {
		if ids[r.ID] {
			t.Errorf("duplicate result id %s", r.ID)
		}
		ids[r.ID] = true
	}
	if len(ids) != len(features) {
		t.Errorf("expected %d distinct results, got %d", len(features), len(ids))
	}
}

func TestFingerprint(t *testing.T) {
	features := hyderabadFeatures(8)
	a := Build(features, DefaultOptions())
	b := Build(features, DefaultOptions())
	if a.Fingerprint() != b.Fingerprint() {
		t.Error("expected equal content to share a fingerprint")
	}

	moved := append([]models.PointFeature(nil), features...)
	moved[3].Coordinates.Latitude += 1e-9
	if Build(moved, DefaultOptions()).Fingerprint() == a.Fingerprint() {
		t.Error("expected a moved feature to change the fingerprint")
	}

	opts := DefaultOptions()
	opts.Radius = 40
	if Build(features, opts).Fingerprint() == a.Fingerprint() {
		t.Error("expected different options to change the fingerprint")
	}

	labelled := append([]models.PointFeature(nil), features...)
	labelled[0].Extra = map[string]string{"name": "Clinic"}
	if Build(labelled, DefaultOptions()).Fingerprint() == a.Fingerprint() {
		t.Error("expected changed properties to change the fingerprint")
	}
}
