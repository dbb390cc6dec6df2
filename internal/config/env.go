package config

import (
	"errors"
	"os"
	"strings"
)

// LoadEnv загружает переменные окружения из .env файла.
// Строки имеют формат KEY=VALUE или export KEY=VALUE; значения в одинарных
// или двойных кавычках очищаются от кавычек. Пустые строки и комментарии
// (строки начинающиеся с #) пропускаются.
// Возвращает ошибку если файл не существует или не может быть прочитан.
func LoadEnv(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	for _, line := range strings.Split(string(data), "\n") {
		key, value, ok := parseEnvLine(line)
		if !ok {
			continue
		}
		if err := os.Setenv(key, value); err != nil {
			return err
		}
	}

	return nil
}

func parseEnvLine(line string) (string, string, bool) {
	line = strings.TrimSpace(line)

	// Пропустить пустые строки и комментарии
	if line == "" || strings.HasPrefix(line, "#") {
		return "", "", false
	}
	line = strings.TrimPrefix(line, "export ")

	key, value, found := strings.Cut(line, "=")
	if !found {
		return "", "", false
	}

	key = strings.TrimSpace(key)
	value = strings.TrimSpace(value)
	if key == "" {
		return "", "", false
	}

	if len(value) >= 2 {
		first, last := value[0], value[len(value)-1]
		if (first == '"' || first == '\'') && first == last {
			value = value[1 : len(value)-1]
		}
	}

	return key, value, true
}

// LoadEnvOptional загружает переменные окружения из .env файла, если он существует.
// Отсутствующий файл не считается ошибкой.
func LoadEnvOptional(path string) error {
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return err
	}

	return LoadEnv(path)
}
