package utils

import (
	"errors"

	"github.com/tidwall/gjson"
)

var (
	ErrGjsonNotFound  = errors.New("specified path does not exist")
	ErrGjsonWrongType = errors.New("wrong type")
)

func GjsonGet(json []byte, path string) (gjson.Result, error) {
	result := gjson.GetBytes(json, path)
	if !result.Exists() {
		return result, ErrGjsonNotFound
	}

	return result, nil
}

// GjsonGetString 读取路径对应的字符串，路径不存在时返回空串
func GjsonGetString(json []byte, path string) string {
	if path == "" {
		return ""
	}
	return gjson.GetBytes(json, path).String()
}
