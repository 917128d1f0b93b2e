package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"time"
	_ "time/tzdata"

	"github.com/ory/graceful"
	"golang.org/x/crypto/bcrypt"

	"github.com/fedgatehq/fedgate/cmd/fedgate/controller"
	"github.com/fedgatehq/fedgate/model"
	"github.com/fedgatehq/fedgate/pkg/utils"
	"github.com/fedgatehq/fedgate/service/singleton"
)

type FedGateCliParam struct {
	Version          bool   // 当前版本号
	ConfigFile       string // 配置文件路径
	DatabaseLocation string // Sqlite3 数据库文件路径
}

var fedgateCliParam FedGateCliParam

func initSystem() error {
	// 初始化管理员账户
	var usersCount int64
	if err := singleton.DB.Model(&model.User{}).Count(&usersCount).Error; err != nil {
		return err
	}
	if usersCount == 0 {
		hash, err := bcrypt.GenerateFromPassword([]byte("admin"), bcrypt.DefaultCost)
		if err != nil {
			return err
		}
		admin := model.User{
			Username: "admin",
			Password: string(hash),
		}
		if err := singleton.DB.Create(&admin).Error; err != nil {
			return err
		}
	}

	if err := singleton.LoadSingleton(); err != nil {
		return err
	}

	// 周期清理过期的握手记录
	if _, err := singleton.CronShared.AddFunc(singleton.Conf.StateSweepSpec, func() {
		if n, err := singleton.StateShared.Sweep(); err != nil {
			log.Printf("FEDGATE>> state sweep failed: %v", err)
		} else if n > 0 {
			log.Printf("FEDGATE>> state sweep removed %d rows", n)
		}
	}); err != nil {
		return err
	}

	// 每天 3:30 按保留期清理审计日志
	if _, err := singleton.CronShared.AddFunc("0 30 3 * * *", func() {
		if _, err := singleton.SweepLoginLogs(); err != nil {
			log.Printf("FEDGATE>> login log sweep failed: %v", err)
		}
	}); err != nil {
		return err
	}
	return nil
}

// @title           FedGate API
// @version         1.0
// @description     Identity federation broker API

// @host      localhost:8008
// @BasePath  /api/v1

// @securityDefinitions.apikey  BearerAuth
// @in header
// @name Authorization
func main() {
	flag.BoolVar(&fedgateCliParam.Version, "v", false, "查看当前版本号")
	flag.StringVar(&fedgateCliParam.ConfigFile, "c", "data/config.yaml", "配置文件路径")
	flag.StringVar(&fedgateCliParam.DatabaseLocation, "db", "data/sqlite.db", "Sqlite3数据库文件路径")
	flag.Parse()

	if fedgateCliParam.Version {
		fmt.Println(singleton.Version)
		os.Exit(0)
	}

	if err := utils.FirstError(
		func() error { return singleton.InitConfigFromPath(fedgateCliParam.ConfigFile) },
		singleton.InitTimezoneAndCache,
		func() error { return singleton.InitDBFromPath(fedgateCliParam.DatabaseLocation) },
		initSystem); err != nil {
		log.Fatal(err)
	}

	l, err := net.Listen("tcp", fmt.Sprintf("%s:%d", singleton.Conf.ListenHost, singleton.Conf.ListenPort))
	if err != nil {
		log.Fatal(err)
	}

	singleton.CronShared.Start()

	httpHandler := controller.ServeWeb()
	server := &http.Server{
		Handler:           httpHandler,
		ReadHeaderTimeout: time.Second * 5,
	}

	if err := graceful.Graceful(func() error {
		log.Printf("FEDGATE>> Broker::START ON %s:%d", singleton.Conf.ListenHost, singleton.Conf.ListenPort)
		return server.Serve(l)
	}, func(c context.Context) error {
		log.Println("FEDGATE>> Graceful::START")
		singleton.CronShared.Stop()
		log.Println("FEDGATE>> Graceful::END")
		return server.Shutdown(c)
	}); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Printf("FEDGATE>> ERROR: %v", err)
	}
}
