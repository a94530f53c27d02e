package models

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"math"
	"os"
	"path/filepath"
	"strings"

	"github.com/qmuntal/gltf"
	"github.com/taigrr/prt/pkg/math3d"
)

// GLTFLoader loads GLTF/GLB files into Mesh format, including the base colour
// factor and texture of every material the primitives reference.
type GLTFLoader struct {
	CalculateNormals bool
	SmoothNormals    bool
	// SkipTextures leaves Material.BaseMap nil even when the file embeds one.
	SkipTextures bool
}

// NewGLTFLoader creates a new GLTF loader with default options.
func NewGLTFLoader() *GLTFLoader {
	return &GLTFLoader{
		CalculateNormals: true,
		SmoothNormals:    true,
	}
}

// LoadGLB loads a binary or text GLTF file with the default options.
func LoadGLB(path string) (*Mesh, error) {
	return NewGLTFLoader().Load(path)
}

// Load loads a GLTF or GLB file and returns a Mesh.
func (l *GLTFLoader) Load(path string) (*Mesh, error) {
	doc, err := gltf.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open gltf: %w", err)
	}

	mesh := NewMesh(filepath.Base(path))
	for i, mat := range doc.Materials {
		m, err := l.loadMaterial(doc, filepath.Dir(path), mat)
		if err != nil {
			return nil, fmt.Errorf("material %d: %w", i, err)
		}
		mesh.Materials = append(mesh.Materials, m)
	}

	for _, m := range doc.Meshes {
		if err := l.processMesh(doc, m, mesh); err != nil {
			return nil, fmt.Errorf("process mesh %q: %w", m.Name, err)
		}
	}

	hasNormals := false
	for _, v := range mesh.Vertices {
		if v.Normal.LenSq() > 1e-6 {
			hasNormals = true
			break
		}
	}
	if l.CalculateNormals && !hasNormals {
		if l.SmoothNormals {
			mesh.CalculateSmoothNormals()
		} else {
			mesh.CalculateNormals()
		}
	}

	mesh.CalculateBounds()
	return mesh, nil
}

func (l *GLTFLoader) loadMaterial(doc *gltf.Document, dir string, mat *gltf.Material) (Material, error) {
	m := Material{Name: mat.Name, BaseColor: [4]float64{1, 1, 1, 1}}
	pbr := mat.PBRMetallicRoughness
	if pbr == nil {
		return m, nil
	}
	if pbr.BaseColorFactor != nil {
		m.BaseColor = *pbr.BaseColorFactor
	}
	if l.SkipTextures || pbr.BaseColorTexture == nil {
		return m, nil
	}

	tex := doc.Textures[pbr.BaseColorTexture.Index]
	if tex.Source == nil {
		return m, nil
	}
	data, err := imageData(doc, dir, doc.Images[*tex.Source])
	if err != nil {
		return m, fmt.Errorf("read base colour image: %w", err)
	}
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return m, fmt.Errorf("decode base colour image: %w", err)
	}
	m.BaseMap = img
	return m, nil
}

// imageData returns the encoded bytes of an embedded, data URI or external image.
func imageData(doc *gltf.Document, dir string, img *gltf.Image) ([]byte, error) {
	switch {
	case img.BufferView != nil:
		bv := doc.BufferViews[*img.BufferView]
		buf := doc.Buffers[bv.Buffer]
		return buf.Data[bv.ByteOffset : bv.ByteOffset+bv.ByteLength], nil
	case strings.HasPrefix(img.URI, "data:"):
		return img.MarshalData()
	case img.URI != "":
		return os.ReadFile(filepath.Join(dir, img.URI))
	}
	return nil, fmt.Errorf("image %q has no data", img.Name)
}

// processMesh appends the triangle primitives of m to mesh.
func (l *GLTFLoader) processMesh(doc *gltf.Document, m *gltf.Mesh, mesh *Mesh) error {
	for _, prim := range m.Primitives {
		if prim.Mode != gltf.PrimitiveTriangles {
			continue
		}

		posIdx, ok := prim.Attributes[gltf.POSITION]
		if !ok {
			continue
		}
		positions, err := readVec3Accessor(doc, posIdx)
		if err != nil {
			return fmt.Errorf("read positions: %w", err)
		}

		var normals []math3d.Vec3
		if normIdx, ok := prim.Attributes[gltf.NORMAL]; ok {
			normals, err = readVec3Accessor(doc, normIdx)
			if err != nil {
				return fmt.Errorf("read normals: %w", err)
			}
		}

		var uvs []math3d.Vec2
		if uvIdx, ok := prim.Attributes[gltf.TEXCOORD_0]; ok {
			uvs, err = readVec2Accessor(doc, uvIdx)
			if err != nil {
				return fmt.Errorf("read uvs: %w", err)
			}
		}

		material := -1
		if prim.Material != nil && *prim.Material < len(mesh.Materials) {
			material = *prim.Material
		}

		base := len(mesh.Vertices)
		for i := range positions {
			v := MeshVertex{Position: positions[i]}
			if i < len(normals) {
				v.Normal = normals[i]
			}
			if i < len(uvs) {
				// GLTF puts V=0 at the top of the image
				v.UV = math3d.V2(uvs[i].X, 1.0-uvs[i].Y)
			}
			mesh.Vertices = append(mesh.Vertices, v)
		}

		var indices []int
		if prim.Indices != nil {
			indices, err = readIndices(doc, *prim.Indices)
			if err != nil {
				return fmt.Errorf("read indices: %w", err)
			}
		} else {
			indices = make([]int, len(positions))
			for i := range indices {
				indices[i] = i
			}
		}

		// GLTF winding is CCW, which the renderer also treats as front facing.
		for i := 0; i+2 < len(indices); i += 3 {
			mesh.Faces = append(mesh.Faces, Face{
				V:        [3]int{base + indices[i], base + indices[i+1], base + indices[i+2]},
				Material: material,
			})
		}
	}
	return nil
}

func readVec3Accessor(doc *gltf.Document, accessorIdx int) ([]math3d.Vec3, error) {
	accessor := doc.Accessors[accessorIdx]
	if accessor.Type != gltf.AccessorVec3 {
		return nil, fmt.Errorf("expected VEC3, got %v", accessor.Type)
	}
	raw, err := readFloats(doc, accessor, 3)
	if err != nil {
		return nil, err
	}
	result := make([]math3d.Vec3, accessor.Count)
	for i := range result {
		result[i] = math3d.V3(raw[i*3], raw[i*3+1], raw[i*3+2])
	}
	return result, nil
}

func readVec2Accessor(doc *gltf.Document, accessorIdx int) ([]math3d.Vec2, error) {
	accessor := doc.Accessors[accessorIdx]
	if accessor.Type != gltf.AccessorVec2 {
		return nil, fmt.Errorf("expected VEC2, got %v", accessor.Type)
	}
	raw, err := readFloats(doc, accessor, 2)
	if err != nil {
		return nil, err
	}
	result := make([]math3d.Vec2, accessor.Count)
	for i := range result {
		result[i] = math3d.V2(raw[i*2], raw[i*2+1])
	}
	return result, nil
}

// accessorBytes returns the buffer backing an accessor, its first byte offset
// and the stride between elements.
func accessorBytes(doc *gltf.Document, accessor *gltf.Accessor, elemSize int) ([]byte, int, int, error) {
	if accessor.BufferView == nil {
		return nil, 0, 0, fmt.Errorf("accessor has no buffer view")
	}
	bv := doc.BufferViews[*accessor.BufferView]
	data := doc.Buffers[bv.Buffer].Data
	if data == nil {
		return nil, 0, 0, fmt.Errorf("buffer has no data")
	}
	stride := bv.ByteStride
	if stride == 0 {
		stride = elemSize
	}
	start := bv.ByteOffset + accessor.ByteOffset
	if accessor.Count > 0 && start+(accessor.Count-1)*stride+elemSize > len(data) {
		return nil, 0, 0, fmt.Errorf("accessor exceeds buffer bounds")
	}
	return data, start, stride, nil
}

// readFloats reads n little-endian float32 components per element.
func readFloats(doc *gltf.Document, accessor *gltf.Accessor, n int) ([]float64, error) {
	if accessor.ComponentType != gltf.ComponentFloat {
		return nil, fmt.Errorf("unsupported component type %v", accessor.ComponentType)
	}
	data, start, stride, err := accessorBytes(doc, accessor, n*4)
	if err != nil {
		return nil, err
	}
	out := make([]float64, accessor.Count*n)
	for i := range accessor.Count {
		offset := start + i*stride
		for j := range n {
			bits := binary.LittleEndian.Uint32(data[offset+j*4:])
			out[i*n+j] = float64(math.Float32frombits(bits))
		}
	}
	return out, nil
}

func readIndices(doc *gltf.Document, accessorIdx int) ([]int, error) {
	accessor := doc.Accessors[accessorIdx]
	if accessor.Type != gltf.AccessorScalar {
		return nil, fmt.Errorf("expected SCALAR indices, got %v", accessor.Type)
	}

	var size int
	switch accessor.ComponentType {
	case gltf.ComponentUbyte:
		size = 1
	case gltf.ComponentUshort:
		size = 2
	case gltf.ComponentUint:
		size = 4
	default:
		return nil, fmt.Errorf("unexpected index type: %v", accessor.ComponentType)
	}

	data, start, stride, err := accessorBytes(doc, accessor, size)
	if err != nil {
		return nil, err
	}
	result := make([]int, accessor.Count)
	for i := range result {
		b := data[start+i*stride:]
		switch size {
		case 1:
			result[i] = int(b[0])
		case 2:
			result[i] = int(binary.LittleEndian.Uint16(b))
		case 4:
			result[i] = int(binary.LittleEndian.Uint32(b))
		}
	}
	return result, nil
}
