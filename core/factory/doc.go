// Package factory instantiates pluggable modules (metrics sinks today) from
// configuration entries of the form {type, conf}. Each module registers a
// constructor under its type name; the constructor decodes its raw settings
// with Decode.
//
//	reg := factory.NewRegistry[io.Writer]()
//	_ = reg.Register("file", func(conf map[string]any) (io.Writer, error) {
//	    var c struct{ Path string `json:"path"` }
//	    if err := factory.Decode(conf, &c); err != nil {
//	        return nil, err
//	    }
//	    return os.Create(c.Path)
//	})
//	w, err := reg.Create(factory.ModuleConfig{Type: "file", Conf: map[string]any{"path": "out.log"}})
package factory
