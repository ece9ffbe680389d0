package main

import (
	"bufio"
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/mattn/go-isatty"

	"github.com/deemkeen/loxodon/activitypub"
	"github.com/deemkeen/loxodon/app"
	"github.com/deemkeen/loxodon/domain"
	"github.com/deemkeen/loxodon/storage"
	"github.com/deemkeen/loxodon/util"
)

const usage = `usage: %s <command> [args]

  init [basedir]                      create a new server directory
  adduser <basedir> [uid]             create a local account
  httpd <basedir>                     run the server
  purge <basedir>                     expire old timeline objects once
  webfinger <basedir> <handle>        resolve a remote handle
  queue <basedir> <uid>               process one user's queue once
  follow <basedir> <uid> <actor>      follow a remote actor
  request <basedir> <uid> <url>       signed GET, print the response
  actor <basedir> <uid> <url>         fetch and print a remote actor
  note <basedir> <uid> <text> [re]    post a note, optionally as a reply
`

func main() {
	versionFlag := flag.Bool("v", false, "print version")
	flag.Usage = func() { fmt.Fprintf(os.Stderr, usage, util.Name) }
	flag.Parse()

	if *versionFlag {
		fmt.Printf("%s v%s\n", util.Name, util.GetVersion())
		return
	}

	args := flag.Args()
	if len(args) == 0 {
		flag.Usage()
		os.Exit(1)
	}

	var err error
	switch cmd, rest := args[0], args[1:]; cmd {
	case "init":
		err = cmdInit(rest)
	case "adduser":
		err = cmdAddUser(rest)
	case "httpd":
		err = cmdHttpd(rest)
	case "purge":
		err = cmdPurge(rest)
	case "webfinger":
		err = cmdWebFinger(rest)
	case "queue":
		err = cmdQueue(rest)
	case "follow":
		err = cmdFollow(rest)
	case "request":
		err = cmdRequest(rest)
	case "actor":
		err = cmdActor(rest)
	case "note":
		err = cmdNote(rest)
	default:
		flag.Usage()
		os.Exit(1)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "%s: %v\n", util.Name, err)
		os.Exit(1)
	}
}

// loadDeps reads the config of a basedir argument and assembles the
// federation dependencies every command shares.
func loadDeps(basedir string) (*activitypub.Deps, error) {
	conf, err := util.ReadConf(basedir)
	if err != nil {
		return nil, err
	}
	util.SetupLogging(conf.Conf.WithJournald)
	return activitypub.NewDeps(conf), nil
}

// prompt reads one line from stdin when it is a terminal, falling back to
// the default otherwise.
func prompt(label, fallback string) string {
	if !isatty.IsTerminal(os.Stdin.Fd()) {
		return fallback
	}
	if fallback != "" {
		fmt.Printf("%s [%s]: ", label, fallback)
	} else {
		fmt.Printf("%s: ", label)
	}
	line, err := bufio.NewReader(os.Stdin).ReadString('\n')
	if err != nil {
		return fallback
	}
	line = strings.TrimSpace(line)
	if line == "" {
		return fallback
	}
	return line
}

var serverDirs = []string{"object", "user", "app", "token", "archive"}

const defaultGreeting = `<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<link rel="stylesheet" href="style.css">
<title>a quiet corner of the fediverse</title>
</head>
<body>
<h1>a quiet corner of the fediverse</h1>
<p>This server speaks ActivityPub. Look up its users from your own instance.</p>
</body>
</html>
`

const defaultStyle = `body {
	max-width: 40em;
	margin: 2em auto;
	padding: 0 1em;
	font-family: sans-serif;
}
`

func cmdInit(args []string) error {
	basedir := "."
	if len(args) > 0 {
		basedir = args[0]
	}
	if _, err := os.Stat(filepath.Join(basedir, "server.json")); err == nil {
		return fmt.Errorf("%s already holds a server.json", basedir)
	}

	conf := &util.AppConfig{BaseDir: basedir, Conf: util.DefaultServerConfig()}
	conf.Conf.Host = prompt("host", "")
	if conf.Conf.Host == "" {
		return fmt.Errorf("a hostname is required")
	}
	conf.Conf.Prefix = prompt("url prefix", "")
	conf.Conf.Address = prompt("listen address", conf.Conf.Address)
	port, err := strconv.Atoi(prompt("listen port", strconv.Itoa(conf.Conf.Port)))
	if err != nil {
		return fmt.Errorf("invalid port: %w", err)
	}
	conf.Conf.Port = port

	for _, dir := range serverDirs {
		if err := os.MkdirAll(filepath.Join(basedir, dir), 0755); err != nil {
			return err
		}
	}
	if err := os.WriteFile(filepath.Join(basedir, "greeting.html"), []byte(defaultGreeting), 0644); err != nil {
		return err
	}
	if err := os.WriteFile(filepath.Join(basedir, "style.css"), []byte(defaultStyle), 0644); err != nil {
		return err
	}
	if err := conf.WriteConf(); err != nil {
		return err
	}

	fmt.Printf("initialized %s for https://%s%s\n", basedir, conf.Conf.Host, conf.Conf.Prefix)
	fmt.Printf("next: %s adduser %s\n", util.Name, basedir)
	return nil
}

func cmdAddUser(args []string) error {
	if len(args) < 1 {
		return fmt.Errorf("usage: adduser <basedir> [uid]")
	}
	deps, err := loadDeps(args[0])
	if err != nil {
		return err
	}

	var uid string
	if len(args) > 1 {
		uid = args[1]
	} else {
		uid = prompt("uid", "")
	}
	if ok, msg := util.IsValidUID(uid); !ok {
		return fmt.Errorf("invalid uid: %s", msg)
	}

	name := prompt("display name", uid)
	password := prompt("password", util.RandomString(12))
	email := prompt("notification email (empty for none)", "")

	keys := util.GeneratePemKeypair()
	user := &domain.User{
		Config: domain.UserConfig{
			UID:       uid,
			Name:      name,
			Published: time.Now().UTC().Format("2006-01-02T15:04:05Z"),
			Passwd:    util.HashPassword(uid, password),
			Email:     email,
		},
		Keys: domain.KeyPair{Secret: keys.Private, Public: keys.Public},
	}
	if err := deps.Store.AddUser(user); err != nil {
		return err
	}

	fmt.Printf("created %s\n", deps.Conf.ActorURL(uid))
	return nil
}

func cmdHttpd(args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("usage: httpd <basedir>")
	}
	conf, err := util.ReadConf(args[0])
	if err != nil {
		return err
	}
	util.SetupLogging(conf.Conf.WithJournald)
	log.Printf("%s v%s, layout %g", util.Name, util.GetVersion(), conf.Conf.Layout)
	return app.New(conf).Start()
}

func cmdPurge(args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("usage: purge <basedir>")
	}
	deps, err := loadDeps(args[0])
	if err != nil {
		return err
	}
	return deps.Store.Purge()
}

func cmdWebFinger(args []string) error {
	if len(args) != 2 {
		return fmt.Errorf("usage: webfinger <basedir> <handle>")
	}
	deps, err := loadDeps(args[0])
	if err != nil {
		return err
	}
	actor, uid, err := activitypub.WebFinger(deps, args[1])
	if err != nil {
		return err
	}
	fmt.Printf("%s %s\n", actor, uid)
	return nil
}

func cmdQueue(args []string) error {
	if len(args) != 2 {
		return fmt.Errorf("usage: queue <basedir> <uid>")
	}
	deps, err := loadDeps(args[0])
	if err != nil {
		return err
	}
	uid := args[1]
	if !deps.Store.UserExists(uid) {
		return fmt.Errorf("no such user %s", uid)
	}
	before := deps.Queue.Len(uid)
	if err := app.ProcessUserQueue(deps, app.NewMailer(), uid); err != nil {
		return err
	}
	fmt.Printf("processed queue of %s: %d items before, %d after\n",
		uid, before, deps.Queue.Len(uid))
	return nil
}

func cmdFollow(args []string) error {
	if len(args) != 3 {
		return fmt.Errorf("usage: follow <basedir> <uid> <actor>")
	}
	deps, err := loadDeps(args[0])
	if err != nil {
		return err
	}
	uid := args[1]
	err, user := deps.Store.ReadUser(uid)
	if err != nil {
		return err
	}

	target := args[2]
	if !util.IsURL(target) {
		target, _, err = activitypub.WebFinger(deps, target)
		if err != nil {
			return err
		}
	}

	follow := activitypub.NewFollow(deps.Conf, uid, target)
	if err := deps.Store.FollowingAdd(uid, &domain.FollowingEntry{
		Actor:  target,
		Object: follow,
	}); err != nil {
		return err
	}
	if err := activitypub.Post(deps, user, follow); err != nil {
		return err
	}

	fmt.Printf("follow of %s pending, run the queue to deliver it\n", target)
	return nil
}

func cmdRequest(args []string) error {
	if len(args) != 3 {
		return fmt.Errorf("usage: request <basedir> <uid> <url>")
	}
	deps, err := loadDeps(args[0])
	if err != nil {
		return err
	}
	err, user := deps.Store.ReadUser(args[1])
	if err != nil {
		return err
	}

	resp, err := activitypub.SignedGet(deps, user, args[2])
	if err != nil {
		return err
	}
	fmt.Printf("HTTP %d\n", resp.Status)
	os.Stdout.Write(resp.Body)
	fmt.Println()
	return nil
}

func cmdActor(args []string) error {
	if len(args) != 3 {
		return fmt.Errorf("usage: actor <basedir> <uid> <url>")
	}
	deps, err := loadDeps(args[0])
	if err != nil {
		return err
	}
	err, user := deps.Store.ReadUser(args[1])
	if err != nil {
		return err
	}

	doc, code, err := activitypub.ActorRequest(deps, user, args[2])
	if err != nil {
		return err
	}
	if code == activitypub.StatusStale {
		fmt.Fprintln(os.Stderr, "(cached copy is stale)")
	}
	fmt.Println(util.PrettyPrint(doc))
	return nil
}

func cmdNote(args []string) error {
	if len(args) < 3 || len(args) > 4 {
		return fmt.Errorf("usage: note <basedir> <uid> <text> [in_reply_to]")
	}
	deps, err := loadDeps(args[0])
	if err != nil {
		return err
	}
	uid := args[1]
	err, user := deps.Store.ReadUser(uid)
	if err != nil {
		return err
	}

	inReplyTo := ""
	if len(args) == 4 {
		inReplyTo = args[3]
	}

	note, err := activitypub.NewNote(deps, user, args[2], inReplyTo, nil)
	if err != nil {
		return err
	}
	noteID := domain.GetString(note, "id")

	if code := deps.Store.Put(noteID, note, false); !storage.ValidStatus(code) {
		return fmt.Errorf("store note: HTTP %d", code)
	}
	deps.Store.CacheAdd(uid, noteID, storage.CachePrivate)

	public := false
	for _, r := range domain.Addressees(note) {
		if r == domain.PublicURI {
			public = true
		}
	}
	if public {
		deps.Store.CacheAdd(uid, noteID, storage.CachePublic)
	}

	create := activitypub.NewCreate(deps.Conf, uid, note)
	if err := activitypub.Post(deps, user, create); err != nil {
		return err
	}

	fmt.Println(noteID)
	return nil
}
