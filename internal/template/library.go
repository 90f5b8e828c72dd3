// Package template 管理幻灯片模板库
package template

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"ppt-gen-api/internal/domain/entity"
	"ppt-gen-api/pkg/errors"
)

// 固定模板文件名，始终存在于模板目录
const (
	FixedTitleFile  = "title_slides.pptx"
	FixedTOCFile    = "table_of_contents_slides.pptx"
	FixedEndingFile = "ending_slides.pptx"
	defaultCacheTTL = 5 * time.Minute
)

var contentFilePattern = regexp.MustCompile(`^split_presentations_(\d+)\.pptx$`)

// pptx 是 zip 容器，校验文件头即可判断基本有效性
var zipMagic = []byte{'P', 'K', 0x03, 0x04}

// Scan 一次目录扫描的结果快照
type Scan struct {
	// Numbers 按升序排列的可用模板编号
	Numbers []int
	// Paths 编号到文件路径
	Paths map[int]string
	// MaxNumber 最大模板编号
	MaxNumber int
	ScannedAt time.Time
}

// Library 模板库。目录扫描结果缓存 ScanCacheTTL，
// 过期后由 singleflight 保证只有一个协程重新扫描。
type Library struct {
	dir string
	ttl time.Duration

	mu      sync.RWMutex
	cached  *Scan
	expires time.Time
	group   singleflight.Group

	// now 可注入时钟，测试用
	now func() time.Time
}

// Option Library 构造选项
type Option func(*Library)

// WithClock 注入时钟
func WithClock(now func() time.Time) Option {
	return func(l *Library) { l.now = now }
}

// NewLibrary 创建模板库
func NewLibrary(dir string, ttl time.Duration, opts ...Option) *Library {
	if ttl <= 0 {
		ttl = defaultCacheTTL
	}
	l := &Library{
		dir: dir,
		ttl: ttl,
		now: time.Now,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Dir 模板目录
func (l *Library) Dir() string {
	return l.dir
}

// CurrentScan 返回当前扫描快照，过期则重新扫描
func (l *Library) CurrentScan() (*Scan, error) {
	l.mu.RLock()
	if l.cached != nil && l.now().Before(l.expires) {
		scan := l.cached
		l.mu.RUnlock()
		return scan, nil
	}
	l.mu.RUnlock()

	v, err, _ := l.group.Do("scan", func() (interface{}, error) {
		scan, err := l.scan()
		if err != nil {
			return nil, err
		}
		l.mu.Lock()
		l.cached = scan
		l.expires = l.now().Add(l.ttl)
		l.mu.Unlock()
		return scan, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*Scan), nil
}

// scan 扫描目录，收集编号模板
func (l *Library) scan() (*Scan, error) {
	entries, err := os.ReadDir(l.dir)
	if err != nil {
		return nil, errors.Wrap(err, errors.CodeInternalError, "failed to scan template dir")
	}

	paths := make(map[int]string)
	var numbers []int
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		m := contentFilePattern.FindStringSubmatch(e.Name())
		if m == nil {
			continue
		}
		n, err := strconv.Atoi(m[1])
		if err != nil || n <= 0 {
			continue
		}
		paths[n] = filepath.Join(l.dir, e.Name())
		numbers = append(numbers, n)
	}
	sort.Ints(numbers)

	maxNumber := 0
	if len(numbers) > 0 {
		maxNumber = numbers[len(numbers)-1]
	}

	return &Scan{
		Numbers:   numbers,
		Paths:     paths,
		MaxNumber: maxNumber,
		ScannedAt: l.now(),
	}, nil
}

// TemplatePath 解析编号模板路径。编号越界、文件缺失或不是合法的
// 幻灯片文档都返回 ErrTemplateNotFound。
func (l *Library) TemplatePath(number int) (string, error) {
	scan, err := l.CurrentScan()
	if err != nil {
		return "", err
	}

	if number < 1 || number > scan.MaxNumber {
		return "", errors.ErrTemplateNotFound.WithDetail(
			fmt.Sprintf("template number %d out of range 1..%d", number, scan.MaxNumber))
	}
	path, ok := scan.Paths[number]
	if !ok {
		return "", errors.ErrTemplateNotFound.WithDetail(
			fmt.Sprintf("template number %d not present on disk", number))
	}
	if err := validateSlideFile(path); err != nil {
		return "", err
	}
	return path, nil
}

// FixedPath 返回固定模板路径
func (l *Library) FixedPath(pageType entity.PageType) (string, error) {
	var name string
	switch pageType {
	case entity.PageTypeTitle:
		name = FixedTitleFile
	case entity.PageTypeTableOfContents:
		name = FixedTOCFile
	case entity.PageTypeEnding:
		name = FixedEndingFile
	default:
		return "", errors.ErrInvalidParam.WithDetail(
			fmt.Sprintf("page type %s has no fixed template", pageType))
	}
	path := filepath.Join(l.dir, name)
	if err := validateSlideFile(path); err != nil {
		return "", err
	}
	return path, nil
}

// Catalog 生成模板目录说明，供推荐提示词使用
func (l *Library) Catalog() (string, int, error) {
	scan, err := l.CurrentScan()
	if err != nil {
		return "", 0, err
	}
	var sb strings.Builder
	for _, n := range scan.Numbers {
		fmt.Fprintf(&sb, "模板 %d: %s\n", n, filepath.Base(scan.Paths[n]))
	}
	return strings.TrimRight(sb.String(), "\n"), scan.MaxNumber, nil
}

// validateSlideFile 校验文件存在且具有 zip 容器文件头
func validateSlideFile(path string) error {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return errors.ErrTemplateNotFound.WithDetail(path)
		}
		return errors.Wrap(err, errors.CodeInternalError, "failed to open template file")
	}
	defer func() { _ = f.Close() }()

	header := make([]byte, len(zipMagic))
	if _, err := f.Read(header); err != nil || !bytes.Equal(header, zipMagic) {
		return errors.ErrTemplateNotFound.WithDetail(
			fmt.Sprintf("%s is not a valid slide document", path))
	}
	return nil
}
