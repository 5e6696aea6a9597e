// Package config 提供了条目服务平台的配置管理功能。
// 本文件实现配置文件变更监听：配置文件被写入时重新加载并回调，
// 允许在不重启进程的情况下翻转运行时特性开关（缓存、性能统计）。
package config

import (
	"fmt"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/sirupsen/logrus"
)

// reloadDebounce 是重载的去抖间隔，合并编辑器触发的连续写事件。
const reloadDebounce = 500 * time.Millisecond

// Watcher 监听配置文件变更并触发重载回调。
type Watcher struct {
	path     string
	onReload func(*Config)
	logger   *logrus.Logger
	watcher  *fsnotify.Watcher
	done     chan struct{}
}

// NewWatcher 创建配置监听器。onReload 在每次成功重载后被调用。
func NewWatcher(path string, onReload func(*Config), logger *logrus.Logger) (*Watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create config watcher: %w", err)
	}

	// 监听目录而不是文件：原子写（rename 覆盖）会使文件级监听失效
	if err := fw.Add(filepath.Dir(path)); err != nil {
		fw.Close()
		return nil, fmt.Errorf("failed to watch config directory: %w", err)
	}

	w := &Watcher{
		path:     path,
		onReload: onReload,
		logger:   logger,
		watcher:  fw,
		done:     make(chan struct{}),
	}
	go w.loop()
	return w, nil
}

// Close 停止监听。
func (w *Watcher) Close() error {
	close(w.done)
	return w.watcher.Close()
}

// loop 消费文件系统事件，去抖后重载配置。
func (w *Watcher) loop() {
	var timer *time.Timer
	for {
		select {
		case <-w.done:
			return
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != filepath.Clean(w.path) {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			if timer != nil {
				timer.Stop()
			}
			timer = time.AfterFunc(reloadDebounce, w.reload)
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.WithError(err).Warn("Config watcher error")
		}
	}
}

// reload 重新加载配置并触发回调。加载失败时保留旧配置继续运行。
func (w *Watcher) reload() {
	cfg, err := Load(w.path)
	if err != nil {
		w.logger.WithError(err).Warn("Config reload failed, keeping previous config")
		return
	}
	w.logger.WithField("path", w.path).Info("Config reloaded")
	w.onReload(cfg)
}
