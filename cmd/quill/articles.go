package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"
	"unicode/utf8"

	"github.com/target/quill/internal/bootstrap"
	"github.com/target/quill/internal/domain/article"
	"github.com/target/quill/internal/service"
)

const listTitleWidth = 40

// articleSession is an open service container plus a sync core bound to the
// persisted session.
type articleSession struct {
	svc  *bootstrap.ServiceContainer
	sync *service.ArticleSync
}

func openArticles(cmdCtx *commandContext) (*articleSession, error) {
	svc, err := openServices(cmdCtx, openOptions{WantDB: true})
	if err != nil {
		return nil, err
	}
	ctx, cancel := requestContext(cmdCtx)
	defer cancel()
	svc.Sessions.LoadSession(ctx)

	s, err := svc.NewArticleSync()
	if err != nil {
		closeServices(cmdCtx, svc)
		return nil, err
	}
	return &articleSession{svc: svc, sync: s}, nil
}

func (a *articleSession) close(cmdCtx *commandContext) {
	if err := a.sync.Close(); err != nil {
		cmdCtx.Logger.Warn("close article sync failed", "error", err)
	}
	closeServices(cmdCtx, a.svc)
}

func parseSortFlag(name string, args []string, fallback article.SortKey) (article.SortKey, []string, error) {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	raw := fs.String("sort", string(fallback), "ordering: created_desc, created_asc, updated_desc, title_asc")
	if err := fs.Parse(args); err != nil {
		return "", nil, err
	}
	key, err := article.ParseSortKey(*raw)
	if err != nil {
		return "", nil, err
	}
	return key, fs.Args(), nil
}

func runList(cmdCtx *commandContext, args []string) error {
	key, _, err := parseSortFlag("list", args, cmdCtx.Config.Sync.Sort())
	if err != nil {
		return err
	}
	a, err := openArticles(cmdCtx)
	if err != nil {
		return err
	}
	defer a.close(cmdCtx)

	ctx, cancel := requestContext(cmdCtx)
	defer cancel()
	if err := a.sync.Reload(ctx, key); err != nil {
		return err
	}
	return printArticles(cmdCtx.Stdout, a.sync.Articles())
}

func runShow(cmdCtx *commandContext, args []string) error {
	id, err := singleID("show", args)
	if err != nil {
		return err
	}
	a, err := openArticles(cmdCtx)
	if err != nil {
		return err
	}
	defer a.close(cmdCtx)

	ctx, cancel := requestContext(cmdCtx)
	defer cancel()
	got, err := a.sync.Get(ctx, id)
	if err != nil {
		return err
	}
	return printArticle(cmdCtx.Stdout, *got)
}

type draftOptions struct {
	ID    string
	Draft article.Draft
}

func parseDraftFlags(name string, args []string, needID bool) (draftOptions, error) {
	var opts draftOptions
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.StringVar(&opts.Draft.Title, "title", "", "article title")
	fs.StringVar(&opts.Draft.Content, "content", "", "article body")
	if needID {
		// Accept the id before the flags: quill update <id> -title ...
		if len(args) > 0 && !strings.HasPrefix(args[0], "-") {
			opts.ID = args[0]
			args = args[1:]
		}
	}
	if err := fs.Parse(args); err != nil {
		return opts, err
	}
	if needID {
		if opts.ID == "" && fs.NArg() == 1 {
			opts.ID = fs.Arg(0)
		}
		if strings.TrimSpace(opts.ID) == "" {
			return opts, fmt.Errorf("usage: quill %s <id> -title ... -content ...", name)
		}
	}
	return opts, nil
}

func runCreate(cmdCtx *commandContext, args []string) error {
	opts, err := parseDraftFlags("create", args, false)
	if err != nil {
		return err
	}
	a, err := openArticles(cmdCtx)
	if err != nil {
		return err
	}
	defer a.close(cmdCtx)

	ctx, cancel := requestContext(cmdCtx)
	defer cancel()
	created, err := a.sync.Create(ctx, opts.Draft)
	if err != nil {
		return err
	}
	return printArticle(cmdCtx.Stdout, *created)
}

func runUpdate(cmdCtx *commandContext, args []string) error {
	opts, err := parseDraftFlags("update", args, true)
	if err != nil {
		return err
	}
	a, err := openArticles(cmdCtx)
	if err != nil {
		return err
	}
	defer a.close(cmdCtx)

	ctx, cancel := requestContext(cmdCtx)
	defer cancel()
	updated, err := a.sync.Update(ctx, opts.ID, opts.Draft)
	if err != nil {
		return err
	}
	return printArticle(cmdCtx.Stdout, *updated)
}

type deleteOptions struct {
	ID  string
	Yes bool
}

func parseDeleteFlags(args []string) (deleteOptions, error) {
	var opts deleteOptions
	if len(args) > 0 && !strings.HasPrefix(args[0], "-") {
		opts.ID = args[0]
		args = args[1:]
	}
	fs := flag.NewFlagSet("delete", flag.ContinueOnError)
	fs.BoolVar(&opts.Yes, "yes", false, "confirm the deletion")
	if err := fs.Parse(args); err != nil {
		return opts, err
	}
	if opts.ID == "" && fs.NArg() == 1 {
		opts.ID = fs.Arg(0)
	}
	if strings.TrimSpace(opts.ID) == "" {
		return opts, errors.New("usage: quill delete <id> -yes")
	}
	return opts, nil
}

func runDelete(cmdCtx *commandContext, args []string) error {
	opts, err := parseDeleteFlags(args)
	if err != nil {
		return err
	}
	if !opts.Yes {
		return errors.New("refusing to delete without -yes; deletion cannot be undone")
	}
	a, err := openArticles(cmdCtx)
	if err != nil {
		return err
	}
	defer a.close(cmdCtx)

	ctx, cancel := requestContext(cmdCtx)
	defer cancel()
	if err := a.sync.Delete(ctx, opts.ID); err != nil {
		return err
	}
	return writef(cmdCtx.Stdout, "deleted %s\n", opts.ID)
}

func singleID(name string, args []string) (string, error) {
	if len(args) != 1 || strings.TrimSpace(args[0]) == "" {
		return "", fmt.Errorf("usage: quill %s <id>", name)
	}
	return strings.TrimSpace(args[0]), nil
}

func printArticles(w io.Writer, list []article.Article) error {
	if len(list) == 0 {
		return writeln(w, "(no articles)")
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	if err := writef(tw, "ID\tTITLE\tAUTHOR\tCREATED\tEDITED\n"); err != nil {
		return err
	}
	for _, a := range list {
		edited := ""
		if a.Edited() {
			edited = a.UpdatedAt.Local().Format(time.DateTime)
		}
		if err := writef(tw, "%s\t%s\t%s\t%s\t%s\n",
			a.ID, truncate(a.Title, listTitleWidth), a.Author, a.CreatedAt.Local().Format(time.DateTime), edited); err != nil {
			return err
		}
	}
	return tw.Flush()
}

func printArticle(w io.Writer, a article.Article) error {
	if err := writef(w, "%s\nby %s on %s\n", a.Title, a.Author, a.CreatedAt.Local().Format(time.DateTime)); err != nil {
		return err
	}
	if a.Edited() {
		if err := writef(w, "edited %s\n", a.UpdatedAt.Local().Format(time.DateTime)); err != nil {
			return err
		}
	}
	return writef(w, "id: %s\n\n%s\n", a.ID, a.Content)
}

func truncate(s string, width int) string {
	if utf8.RuneCountInString(s) <= width {
		return s
	}
	r := []rune(s)
	return string(r[:width-1]) + "…"
}
