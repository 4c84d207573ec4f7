// Package cluster groups point features into zoom-dependent clusters.
//
// An Index is built once per layer from its features. Each query filters the
// features to the viewport and merges those whose projected screen distance
// at the requested zoom is within the configured pixel radius. Because only
// features inside the box take part, the counts of a query always add up to
// the number of features inside the box.
package cluster

import (
	"encoding/binary"
	"fmt"
	"math"
	"sort"
	"strconv"

	"github.com/cespare/xxhash/v2"

	"github.com/mr1hm/go-citymap/internal/models"
	"github.com/mr1hm/go-citymap/internal/spatial"
)

const maxSupportedZoom = 22

type Options struct {
	MinZoom   int     // lowest zoom clusters are computed for
	MaxZoom   int     // highest zoom clusters are computed for
	MinPoints int     // minimum features to form a cluster
	Radius    float64 // cluster radius in pixels
	Extent    int     // tile extent the radius is relative to
	NodeSize  int     // kd-tree leaf size
}

// DefaultOptions mirrors the map client: radius 60 up to zoom 17.
func DefaultOptions() Options {
	return Options{
		MinZoom:   0,
		MaxZoom:   17,
		MinPoints: 2,
		Radius:    60,
		Extent:    512,
		NodeSize:  64,
	}
}

// normalize fills unset options with defaults and keeps the zoom range sane.
func (o Options) normalize() Options {
	if o.MinZoom < 0 {
		o.MinZoom = 0
	}
	if o.MaxZoom <= 0 {
		o.MaxZoom = 17
	}
	if o.MaxZoom > maxSupportedZoom {
		o.MaxZoom = maxSupportedZoom
	}
	if o.MinZoom > o.MaxZoom {
		o.MinZoom = o.MaxZoom
	}
	if o.MinPoints < 2 {
		o.MinPoints = 2
	}
	if o.Radius <= 0 {
		o.Radius = 60
	}
	if o.Extent <= 0 {
		o.Extent = 512
	}
	if o.NodeSize <= 0 {
		o.NodeSize = 64
	}
	return o
}

// Result is either a cluster (Count > 1) or a single feature (Count == 1,
// Feature set).
type Result struct {
	ID          string
	Coordinates models.Coordinates
	Count       int
	Zoom        int
	Feature     *models.PointFeature
	members     []int
}

func (r Result) IsCluster() bool {
	return r.Count > 1
}

type Index struct {
	opts        Options
	features    []models.PointFeature
	xs, ys      []float64
	tree        *kdTree
	fingerprint uint64
}

// Build indexes features with opts. The features slice is copied and every
// copy gets a Key that is unique within the index.
func Build(features []models.PointFeature, opts Options) *Index {
	opts = opts.normalize()

	idx := &Index{
		opts:     opts,
		features: make([]models.PointFeature, len(features)),
		xs:       make([]float64, len(features)),
		ys:       make([]float64, len(features)),
	}
	copy(idx.features, features)
	assignKeys(idx.features)

	ids := make([]int, len(features))
	for i, f := range idx.features {
		ids[i] = i
		idx.xs[i] = spatial.LngX(f.Coordinates.Longitude)
		idx.ys[i] = spatial.LatY(f.Coordinates.Latitude)
	}
	idx.tree = newKDTree(ids, idx.xs, idx.ys, opts.NodeSize)
	idx.fingerprint = fingerprint(opts, idx.features)

	return idx
}

// assignKeys keys each feature by its source id. Features without an id, and
// repeats of an id already taken, are keyed by their position instead.
func assignKeys(features []models.PointFeature) {
	taken := make(map[string]bool, len(features))
	pending := make([]int, 0)
	for i := range features {
		id := features[i].Ref.ID
		if id == "" || taken[id] {
			pending = append(pending, i)
			continue
		}
		taken[id] = true
		features[i].Key = id
	}
	for _, i := range pending {
		key := "#" + strconv.Itoa(i)
		for taken[key] {
			key += "~"
		}
		taken[key] = true
		features[i].Key = key
	}
}

// fingerprint hashes everything a query result depends on, so equal
// fingerprints mean equal query output across processes.
func fingerprint(opts Options, features []models.PointFeature) uint64 {
	h := xxhash.New()
	var buf [8]byte
	writeInt := func(v int64) {
		binary.LittleEndian.PutUint64(buf[:], uint64(v))
		h.Write(buf[:])
	}
	writeFloat := func(v float64) {
		binary.LittleEndian.PutUint64(buf[:], math.Float64bits(v))
		h.Write(buf[:])
	}
	writeString := func(s string) {
		writeInt(int64(len(s)))
		h.WriteString(s)
	}

	writeInt(int64(opts.MinZoom))
	writeInt(int64(opts.MaxZoom))
	writeInt(int64(opts.MinPoints))
	writeFloat(opts.Radius)
	writeInt(int64(opts.Extent))
	writeInt(int64(len(features)))

	for _, f := range features {
		writeString(f.Key)
		writeString(string(f.Ref.Layer))
		writeString(f.Ref.ID)
		writeString(string(f.Category))
		writeFloat(f.Coordinates.Latitude)
		writeFloat(f.Coordinates.Longitude)

		keys := make([]string, 0, len(f.Extra))
		for k := range f.Extra {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		writeInt(int64(len(keys)))
		for _, k := range keys {
			writeString(k)
			writeString(f.Extra[k])
		}
	}
	return h.Sum64()
}

func (idx *Index) Len() int {
	return len(idx.features)
}

// Fingerprint identifies the indexed content and options.
func (idx *Index) Fingerprint() uint64 {
	return idx.fingerprint
}

func (idx *Index) Options() Options {
	return idx.opts
}

// ClampZoom limits zoom to the index zoom range.
func (idx *Index) ClampZoom(zoom int) int {
	if zoom < idx.opts.MinZoom {
		return idx.opts.MinZoom
	}
	if zoom > idx.opts.MaxZoom {
		return idx.opts.MaxZoom
	}
	return zoom
}

// Query returns clusters and single features inside bbox at zoom.
func (idx *Index) Query(bbox models.BoundingBox, zoom int) []Result {
	if len(idx.features) == 0 {
		return nil
	}
	zoom = idx.ClampZoom(zoom)
	return idx.clusterMembers(idx.inBox(bbox), zoom)
}

// Leaves returns the features merged into r.
func (idx *Index) Leaves(r Result) []models.PointFeature {
	leaves := make([]models.PointFeature, 0, len(r.members))
	for _, m := range r.members {
		leaves = append(leaves, idx.features[m])
	}
	return leaves
}

// ExpansionZoom is the first zoom at which r breaks into more than one
// result. Clusters that never split report MaxZoom.
func (idx *Index) ExpansionZoom(r Result) int {
	if !r.IsCluster() {
		return idx.ClampZoom(r.Zoom)
	}
	for z := r.Zoom + 1; z <= idx.opts.MaxZoom; z++ {
		if len(idx.clusterMembers(r.members, z)) > 1 {
			return z
		}
	}
	return idx.opts.MaxZoom
}

// inBox returns the indices of features inside bbox, ascending.
func (idx *Index) inBox(bbox models.BoundingBox) []int {
	// The projected search box is padded slightly and the hits re-checked in
	// degrees, so the result matches BoundingBox.Contains exactly.
	const eps = 1e-9
	candidates := idx.tree.rangeQuery(
		spatial.LngX(bbox.West)-eps, spatial.LatY(bbox.North)-eps,
		spatial.LngX(bbox.East)+eps, spatial.LatY(bbox.South)+eps,
	)

	hits := candidates[:0]
	for _, i := range candidates {
		if bbox.Contains(idx.features[i].Coordinates) {
			hits = append(hits, i)
		}
	}
	sort.Ints(hits)
	return hits
}

// clusterMembers greedily merges the given features at zoom. Features are
// visited in index order so equal input yields equal output.
func (idx *Index) clusterMembers(members []int, zoom int) []Result {
	if len(members) == 0 {
		return nil
	}

	r := idx.opts.Radius / (float64(idx.opts.Extent) * math.Pow(2, float64(zoom)))

	xs := make([]float64, len(members))
	ys := make([]float64, len(members))
	for i, m := range members {
		xs[i] = idx.xs[m]
		ys[i] = idx.ys[m]
	}
	local := make([]int, len(members))
	for i := range local {
		local[i] = i
	}
	tree := newKDTree(local, xs, ys, idx.opts.NodeSize)

	processed := make([]bool, len(members))
	results := make([]Result, 0, len(members))

	for i, m := range members {
		if processed[i] {
			continue
		}
		processed[i] = true

		group := []int{i}
		for _, n := range tree.within(xs[i], ys[i], r) {
			if !processed[n] {
				group = append(group, n)
			}
		}

		if len(group) < idx.opts.MinPoints {
			f := &idx.features[m]
			results = append(results, Result{
				ID:          f.Key,
				Coordinates: f.Coordinates,
				Count:       1,
				Zoom:        zoom,
				Feature:     f,
				members:     []int{m},
			})
			continue
		}

		var sumX, sumY float64
		ids := make([]int, 0, len(group))
		for _, g := range group {
			processed[g] = true
			sumX += xs[g]
			sumY += ys[g]
			ids = append(ids, members[g])
		}
		sort.Ints(ids)
		n := float64(len(group))

		results = append(results, Result{
			ID:    fmt.Sprintf("%d:%s", zoom, idx.features[m].Key),
			Count: len(group),
			Zoom:  zoom,
			Coordinates: models.Coordinates{
				Latitude:  spatial.YLat(sumY / n),
				Longitude: spatial.XLng(sumX / n),
			},
			members: ids,
		})
	}

	return results
}
