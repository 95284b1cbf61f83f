package main

import (
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/betbot/msubot/internal/registry"
	"github.com/betbot/msubot/msu/signing"
	"github.com/betbot/msubot/pkg/secretstore"
)

const usage = `用法: sessionctl [flags] <show|set|clear>

  show   查看私钥对应的持久化登录态
  set    手动写入 wat/wrt（-wat -wrt）
  clear  删除持久化登录态
`

func main() {
	_ = godotenv.Load()

	var (
		envPath   = flag.String("env", "", "从指定 .env 文件读取 PRIVATE_KEY")
		dbPath    = flag.String("store", getenv("TOKEN_STORE_DIR", "data/tokens"), "badger 目录")
		secretKey = flag.String("secret-key", getenv("TOKEN_STORE_KEY", ""), "badger 加密 key（hex/base64）")
		wat       = flag.String("wat", "", "set: access token")
		wrt       = flag.String("wrt", "", "set: refresh token")
		ttl       = flag.Duration("ttl", 24*time.Hour, "set: 保留时间")
	)
	flag.Usage = func() {
		fmt.Fprint(os.Stderr, usage)
		flag.PrintDefaults()
	}
	flag.Parse()
	if flag.NArg() != 1 {
		flag.Usage()
		os.Exit(2)
	}

	rawKey := os.Getenv("PRIVATE_KEY")
	if *envPath != "" {
		kv, err := godotenv.Read(*envPath)
		if err != nil {
			fatal(err)
		}
		rawKey = kv["PRIVATE_KEY"]
	}
	key, err := signing.PrivateKeyFromHex(rawKey)
	if err != nil {
		fatal(err)
	}
	address := signing.AddressFromKey(key).Hex()
	identity := registry.Identity(rawKey)

	var encKey []byte
	if *secretKey != "" {
		if encKey, err = secretstore.ParseKey(*secretKey); err != nil {
			fatal(err)
		}
	}
	ss, err := secretstore.Open(secretstore.OpenOptions{Path: *dbPath, EncryptionKey: encKey})
	if err != nil {
		fatal(err)
	}
	defer ss.Close()

	switch flag.Arg(0) {
	case "show":
		sess, ok, err := ss.LoadSession(identity)
		if err != nil {
			fatal(err)
		}
		if !ok {
			fmt.Printf("%s (%s): 无登录态\n", identity, address)
			return
		}
		fmt.Printf("identity:    %s\naddress:     %s\nwat:         %s\nwrt:         %s\nwatExpireAt: %s\nsavedAt:     %s\n",
			identity, sess.Address, mask(sess.Wat), mask(sess.Wrt), sess.WatExpireAt, sess.SavedAt.Format(time.RFC3339))
	case "set":
		if *wat == "" || *wrt == "" {
			fatal(fmt.Errorf("set 需要 -wat 和 -wrt"))
		}
		if err := ss.SaveSession(identity, secretstore.Session{Address: address, Wat: *wat, Wrt: *wrt}, *ttl); err != nil {
			fatal(err)
		}
		fmt.Fprintf(os.Stderr, "已写入登录态: %s (%s)\n", identity, address)
	case "clear":
		if err := ss.DeleteSession(identity); err != nil {
			fatal(err)
		}
		fmt.Fprintf(os.Stderr, "已删除登录态: %s\n", identity)
	default:
		flag.Usage()
		os.Exit(2)
	}
}

func mask(s string) string {
	if len(s) <= 8 {
		return strings.Repeat("*", len(s))
	}
	return s[:4] + "..." + s[len(s)-4:]
}

func getenv(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}

func fatal(err error) {
	fmt.Fprintln(os.Stderr, "error:", err.Error())
	os.Exit(1)
}
