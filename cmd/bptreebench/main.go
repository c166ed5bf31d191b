package main

import (
	"flag"
	"fmt"
	r "math/rand"
	"os"
	"time"

	"bptreedb/pkg/bptree"
	"bptreedb/pkg/buffer"
	"bptreedb/pkg/disk"
	"bptreedb/pkg/page"
)

var seed = time.Now().UnixMilli()
var rand = r.New(r.NewSource(seed))

func main() {
	n := flag.Int("n", 100000, "number of keys to insert/scan/delete")
	poolSize := flag.Int("pool", 256, "buffer pool frame count")
	path := flag.String("file", ":memory:", "backing page file, or :memory:")
	flag.Parse()

	d, err := disk.Open(*path)
	if err != nil {
		fatal(err)
	}
	defer d.Close()

	pool := buffer.NewPool(d, *poolSize, 2)
	tree, err := bptree.Create(pool, bptree.Options{KeySize: 8, LeafMaxSize: 64, InternalMaxSize: 64})
	if err != nil {
		fatal(err)
	}

	keys := rand.Perm(*n)

	start := time.Now()
	for _, k := range keys {
		key := keyOf(k)
		ok, err := tree.Insert(key, page.RecordID{PageID: page.ID(k)})
		if err != nil {
			fatal(err)
		}
		if !ok {
			fatalf("unexpected duplicate key %d\n", k)
		}
	}
	fmt.Printf("inserted %d keys in %s\n", *n, time.Since(start))

	start = time.Now()
	scanned := 0
	it, err := tree.Begin()
	if err != nil {
		fatal(err)
	}
	for it.Valid() {
		scanned++
		if err := it.Next(); err != nil {
			fatal(err)
		}
	}
	fmt.Printf("scanned %d entries in %s\n", scanned, time.Since(start))

	deleteOrder := rand.Perm(*n)
	start = time.Now()
	for _, k := range deleteOrder {
		if err := tree.Remove(keyOf(k)); err != nil {
			fatal(err)
		}
	}
	fmt.Printf("deleted %d keys in %s\n", *n, time.Since(start))

	empty, err := tree.IsEmpty()
	if err != nil {
		fatal(err)
	}
	fmt.Printf("tree empty after full delete: %v\n", empty)
}

func keyOf(n int) []byte {
	key := make([]byte, 8)
	for i := 7; i >= 0; i-- {
		key[i] = byte(n)
		n >>= 8
	}
	return key
}

func fatal(val interface{}) {
	fmt.Println(val)
	os.Exit(1)
}

func fatalf(format string, values ...interface{}) {
	fmt.Printf(format, values...)
	os.Exit(1)
}
