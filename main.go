package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/pkg/errors"

	"github.com/treemana/atportal/cache"
	"github.com/treemana/atportal/dnsserver"
	"github.com/treemana/atportal/esp"
	"github.com/treemana/atportal/log"
	"github.com/treemana/atportal/server"
	"github.com/treemana/atportal/uart"
	"github.com/treemana/atportal/util"
	"github.com/treemana/atportal/web"
)

// Option is read from atportal.json. Zero values are not replaced by
// defaults except where noted, so every field the portal needs must be set.
type Option struct {
	Log struct {
		File    string `json:"file"`
		STDOUT  bool   `json:"stdout"`
		Verbose bool   `json:"verbose"`
	} `json:"log"`

	Serial struct {
		Port string `json:"port"`
		Baud int    `json:"baud"`
	} `json:"serial"`

	AP esp.APConfig `json:"ap"`

	HTTP struct {
		Port         int    `json:"port"`
		StaticRoot   string `json:"static_root"`
		StaticPrefix string `json:"static_prefix"`
		CacheSize    int    `json:"cache_size"` // number of files, cache disabled if zero
	} `json:"http"`

	DNS struct {
		Port int  `json:"port"`
		Link *int `json:"link"` // esp.MaxLink if omitted

		// Address answered for every A query, the modem's AP address if empty
		Address string `json:"address"`
	} `json:"dns"`

	// ReceiveTimeout number of seconds one receive cycle waits, 5 if zero
	ReceiveTimeout uint64 `json:"receive_timeout"`
}

var (
	option Option
)

func main() {

	raw, err := os.ReadFile("atportal.json")
	if err != nil {
		log.InitDevelop()
		log.Sugar.Errorf("option file error=[%+v]", err)
		log.Sync()
		return
	}

	if err = json.Unmarshal(raw, &option); err != nil {
		panic(err)
	}

	fmt.Println(string(raw))

	// init log
	if err = initLog(); err != nil {
		return
	}
	defer func() {
		log.Sync()
		time.Sleep(time.Second)
	}()

	var port *uart.Port
	if port, err = uart.Open(option.Serial.Port, option.Serial.Baud); err != nil {
		log.Sugar.Errorf("serial [%s] open error=[%+v]", option.Serial.Port, err)
		return
	}
	defer func() {
		if err := port.Close(); err != nil {
			log.Sugar.Errorf("serial close error=[%+v]", err)
		}
	}()

	var opts []esp.Option
	if option.DNS.Link != nil {
		opts = append(opts, esp.WithUDPLink(*option.DNS.Link))
	}

	ap := esp.New(port, nil, opts...)
	if err = ap.ConfigureAP(option.AP); err != nil {
		log.Sugar.Errorf("access point [%s] configure error=[%+v]", option.AP.SSID, err)
		return
	}

	var s *server.Server
	if s, err = initServer(ap); err != nil {
		log.Sugar.Error(err)
		return
	}

	if err = s.Start(); err != nil {
		log.Sugar.Errorf("server start error=[%+v]", err)
		return
	}

	// atportal is running until os exit
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err = s.Serve(ctx); err != nil {
		log.Sugar.Errorf("server serve error=[%+v]", err)
	}

	_ = s.Stop()
}

func initLog() error {
	lc := log.Config{
		File:       option.Log.File,
		STDOUT:     option.Log.STDOUT,
		MaxAge:     2,
		MaxSize:    10,
		MaxBackups: 100,
	}

	if option.Log.Verbose {
		lc.Level = -1
	}

	if err := log.Init(lc); err != nil {
		fmt.Println("log init error", err)
		return err
	}

	return nil
}

func initServer(ap *esp.AccessPoint) (*server.Server, error) {
	address, err := answerAddress(ap)
	if err != nil {
		return nil, err
	}

	responder, err := dnsserver.New(ap, address)
	if err != nil {
		return nil, err
	}

	files, err := cache.New(option.HTTP.CacheSize)
	if err != nil {
		return nil, errors.Wrap(err, "file cache")
	}

	w := web.New(ap)
	w.Static(option.HTTP.StaticPrefix, os.DirFS(option.HTTP.StaticRoot), files)

	return server.New(ap, responder, w, server.Config{
		HTTPPort:       option.HTTP.Port,
		DNSPort:        option.DNS.Port,
		ReceiveTimeout: time.Second * time.Duration(option.ReceiveTimeout),
	})
}

func answerAddress(ap *esp.AccessPoint) (net.IP, error) {
	if len(option.DNS.Address) > 0 {
		return util.ParseIPv4(option.DNS.Address)
	}

	ip, err := ap.IP()
	if err != nil {
		return nil, errors.Wrap(err, "access point address")
	}

	log.Sugar.Infof("access point address=%s", ip)
	return ip, nil
}
