package cluster

import (
	"bytes"
	"compress/zlib"
	"encoding/gob"
	"io"
)

type part struct {
	Key  string
	Data []byte
}

type fullState struct {
	Parts []part
}

func encode(v interface{}) ([]byte, error) {
	var buf bytes.Buffer
	err := gob.NewEncoder(&buf).Encode(v)
	if err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func decode(b []byte, v interface{}) error {
	return gob.NewDecoder(bytes.NewReader(b)).Decode(v)
}

func encodeMeta(meta NodeMeta) ([]byte, error) {
	payload, err := encode(meta)
	if err != nil {
		return nil, err
	}
	b := bytes.NewBuffer(nil)
	w := zlib.NewWriter(b)
	_, err = w.Write(payload)
	if err != nil {
		return nil, err
	}
	err = w.Close()
	if err != nil {
		return nil, err
	}
	return b.Bytes(), nil
}

func decodeMeta(b []byte) (NodeMeta, error) {
	var meta NodeMeta
	uncompressed, err := zlib.NewReader(bytes.NewReader(b))
	if err != nil {
		return meta, err
	}
	out := bytes.NewBuffer(nil)
	_, err = io.Copy(out, uncompressed)
	if err != nil {
		return meta, err
	}
	return meta, decode(out.Bytes(), &meta)
}
