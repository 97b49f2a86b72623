package storage

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// LocalDisk хранит файлы в каталоге на локальном диске.
type LocalDisk struct {
	root       string
	publicPath string
}

// NewLocalDisk создаёт каталог root, если его нет. publicPath задаёт префикс URL, по которому роутер отдаёт файлы.
func NewLocalDisk(root, publicPath string) (*LocalDisk, error) {
	if !filepath.IsAbs(root) {
		cwd, err := os.Getwd()
		if err != nil {
			return nil, fmt.Errorf("storage/local: getwd: %w", err)
		}
		root = filepath.Join(cwd, root)
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("storage/local: mkdir %s: %w", root, err)
	}

	return &LocalDisk{
		root:       root,
		publicPath: "/" + strings.Trim(publicPath, "/"),
	}, nil
}

// Root возвращает абсолютный путь каталога.
func (d *LocalDisk) Root() string { return d.root }

// PublicPath возвращает префикс URL файлов.
func (d *LocalDisk) PublicPath() string { return d.publicPath }

func (d *LocalDisk) abs(key string) string {
	return filepath.Join(d.root, filepath.Base(key))
}

// Put записывает файл. Запись идёт во временный файл с последующим переименованием.
func (d *LocalDisk) Put(_ context.Context, key string, data []byte, _ string) error {
	full := d.abs(key)

	tmp, err := os.CreateTemp(d.root, ".upload-*")
	if err != nil {
		return fmt.Errorf("storage/local: create %s: %w", key, err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("storage/local: write %s: %w", key, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("storage/local: close %s: %w", key, err)
	}
	if err := os.Rename(tmp.Name(), full); err != nil {
		return fmt.Errorf("storage/local: rename %s: %w", key, err)
	}
	return nil
}

// Delete удаляет файл; отсутствие файла ошибкой не считается.
func (d *LocalDisk) Delete(_ context.Context, key string) error {
	err := os.Remove(d.abs(key))
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("storage/local: delete %s: %w", key, err)
	}
	return nil
}

// URL возвращает ссылку вида /uploads/<key>.
func (d *LocalDisk) URL(key string) string {
	return d.publicPath + "/" + key
}

// KeyFromURL возвращает ключ файла по ссылке.
func (d *LocalDisk) KeyFromURL(url string) (string, bool) {
	return keyFromPrefix(d.publicPath, url)
}
