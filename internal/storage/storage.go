// Package storage хранит изображения товаров на локальном диске или в S3-совместимом хранилище.
package storage

import (
	"context"
	"path"
	"strings"

	"github.com/google/uuid"
)

// Disk описывает хранилище файлов изображений.
type Disk interface {
	Put(ctx context.Context, key string, data []byte, contentType string) error
	Delete(ctx context.Context, key string) error
	// URL возвращает публичную ссылку, которую сохраняют в товаре.
	URL(key string) string
	// KeyFromURL возвращает ключ файла по ссылке, выданной URL, и false для чужой ссылки.
	KeyFromURL(url string) (string, bool)
}

// NewKey генерирует уникальное имя файла с заданным расширением.
func NewKey(ext string) string {
	return "resized-" + uuid.NewString() + ext
}

func keyFromPrefix(prefix, url string) (string, bool) {
	prefix = strings.TrimRight(prefix, "/") + "/"
	if !strings.HasPrefix(url, prefix) {
		return "", false
	}
	key := strings.TrimPrefix(url, prefix)
	// Ключи плоские: ссылки с подкаталогами или выходом из корня не принимаются.
	if key == "" || key != path.Base(key) || key == ".." {
		return "", false
	}
	return key, true
}
