// Package archive unpacks toolchain archives.
//
// Two extractors are provided. CommandExtractor shells out to tar and unzip
// and handles every format the host tools understand. NativeExtractor
// unpacks .tar.gz, .tar.bz2 and .zip in-process and validates every entry:
// absolute paths, ".." components and symlinks that leave the destination
// are rejected, and per-file, total size and entry count limits apply.
//
// Basic usage:
//
//	format, err := archive.Detect(path)
//	if err != nil {
//	    return err
//	}
//	ex, err := archive.New(cfg.Toolchain.Extractor, executor)
//	if err != nil {
//	    return err
//	}
//	if err := ex.Extract(ctx, path, dir); err != nil {
//	    return err
//	}
package archive
