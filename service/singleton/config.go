package singleton

import (
	"github.com/fedgatehq/fedgate/model"
)

var Conf *model.Config

// InitConfigFromPath 从给出的文件路径中加载配置
func InitConfigFromPath(path string) error {
	Conf = &model.Config{}
	return Conf.Read(path)
}
