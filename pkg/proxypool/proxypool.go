package proxypool

import (
	"bufio"
	"bytes"
	"math/rand/v2"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

var log = logrus.WithField("component", "proxypool")

// Pool 代理池，文件修改时间变化时才重新加载
type Pool struct {
	path string

	mu      sync.Mutex
	proxies []string
	mtime   time.Time
	loads   int
}

// New 创建代理池，path 为代理文件（每行一个）
func New(path string) *Pool {
	return &Pool{path: path}
}

// Path 代理文件路径
func (p *Pool) Path() string { return p.path }

// refresh 检查文件修改时间，变化时重新加载；文件不存在视为空池
func (p *Pool) refresh() []string {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.path == "" {
		return nil
	}

	info, err := os.Stat(p.path)
	if err != nil {
		if len(p.proxies) > 0 || !p.mtime.IsZero() {
			log.Warnf("代理文件不可用 %s: %v", p.path, err)
		}
		p.proxies = nil
		p.mtime = time.Time{}
		return nil
	}
	if p.loads > 0 && info.ModTime().Equal(p.mtime) {
		return p.proxies
	}

	data, err := os.ReadFile(p.path)
	if err != nil {
		log.Errorf("加载代理文件失败 %s: %v", p.path, err)
		return p.proxies
	}
	p.proxies = parse(data)
	p.mtime = info.ModTime()
	p.loads++
	log.Infof("已加载 %d 个代理", len(p.proxies))
	return p.proxies
}

// parse 每行一个代理，忽略空行和 # 注释，无 scheme 的补 http://
func parse(data []byte) []string {
	var out []string
	sc := bufio.NewScanner(bytes.NewReader(data))
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		if !strings.Contains(line, "://") {
			line = "http://" + line
		}
		out = append(out, line)
	}
	return out
}

// Random 均匀随机取一个代理，池为空返回 false
func (p *Pool) Random() (string, bool) {
	proxies := p.refresh()
	if len(proxies) == 0 {
		return "", false
	}
	return proxies[rand.IntN(len(proxies))], true
}

// Count 当前代理数量
func (p *Pool) Count() int {
	return len(p.refresh())
}

// Available 是否有可用代理
func (p *Pool) Available() bool {
	return p.Count() > 0
}

// List 当前代理列表副本
func (p *Pool) List() []string {
	proxies := p.refresh()
	out := make([]string, len(proxies))
	copy(out, proxies)
	return out
}

// LoadCount 实际读取文件的次数
func (p *Pool) LoadCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.loads
}
