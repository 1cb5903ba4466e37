package signature

import (
	"sort"
	"sync"

	"formcapture/pkg/errors"
)

// Surface 表单内全部签名画布
type Surface struct {
	mu          sync.RWMutex
	width       int
	height      int
	strokeWidth float64
	canvases    map[string]*Canvas
}

func NewSurface(width, height int, strokeWidth float64) *Surface {
	return &Surface{
		width:       width,
		height:      height,
		strokeWidth: strokeWidth,
		canvases:    make(map[string]*Canvas),
	}
}

// Init 初始化字段画布，已存在时直接返回
func (s *Surface) Init(fieldID string) *Canvas {
	s.mu.Lock()
	defer s.mu.Unlock()
	if c, ok := s.canvases[fieldID]; ok {
		return c
	}
	c := NewCanvas(fieldID, s.width, s.height, s.strokeWidth)
	s.canvases[fieldID] = c
	return c
}

// Get 查找画布
func (s *Surface) Get(fieldID string) (*Canvas, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.canvases[fieldID]
	if !ok {
		return nil, errors.New(errors.CodeFieldNotFound, "签名字段不存在: "+fieldID)
	}
	return c, nil
}

// Clear 擦除指定字段
func (s *Surface) Clear(fieldID string) error {
	c, err := s.Get(fieldID)
	if err != nil {
		return err
	}
	c.Clear()
	return nil
}

// Save 序列化指定字段
func (s *Surface) Save(fieldID string) (string, error) {
	c, err := s.Get(fieldID)
	if err != nil {
		return "", err
	}
	v, err := c.Save()
	if err != nil {
		return "", errors.Wrap(err, errors.CodeInternal, "签名序列化失败")
	}
	return v, nil
}

// SaveAll 序列化全部画布，返回字段 ID 到值的映射
func (s *Surface) SaveAll() (map[string]string, error) {
	out := make(map[string]string)
	for _, c := range s.Canvases() {
		v, err := c.Save()
		if err != nil {
			return nil, errors.Wrap(err, errors.CodeInternal, "签名序列化失败: "+c.FieldID())
		}
		out[c.FieldID()] = v
	}
	return out, nil
}

// Canvases 按字段 ID 排序的全部画布
func (s *Surface) Canvases() []*Canvas {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*Canvas, 0, len(s.canvases))
	for _, c := range s.canvases {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].fieldID < out[j].fieldID })
	return out
}
