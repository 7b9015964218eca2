// Modified for Quarry
// Copyright (c) 2013-2014 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package database

import (
	"github.com/pkg/errors"

	"quarrychain.org/quarry-core/logging"
)

// DriverDB defines a structure for backend drivers to use when they
// registered themselves as a backend which implements the Db interface.
type DriverDB struct {
	DbType   string
	CreateDB func(args ...interface{}) (pbdb Db, err error)
	OpenDB   func(args ...interface{}) (pbdb Db, err error)
}

// driverList holds all registered backends.
var driverList []DriverDB

// AddDBDriver adds a back end database driver to available interfaces.
func AddDBDriver(instance DriverDB) {
	for _, drv := range driverList {
		if drv.DbType == instance.DbType {
			return
		}
	}
	driverList = append(driverList, instance)
}

// CreateDB initializes and opens a database of the named type.
func CreateDB(dbtype string, args ...interface{}) (pbdb Db, err error) {
	for _, drv := range driverList {
		if drv.DbType == dbtype {
			db, err := drv.CreateDB(args...)
			if err != nil {
				err = errors.Wrapf(err, "create db %q", dbtype)
			}
			return db, err
		}
	}
	return nil, ErrDbUnknownType
}

// OpenDB opens an existing database of the named type.
func OpenDB(dbtype string, args ...interface{}) (pbdb Db, err error) {
	for _, drv := range driverList {
		if drv.DbType == dbtype {
			db, err := drv.OpenDB(args...)
			if err != nil {
				err = errors.Wrapf(err, "open db %q", dbtype)
			}
			return db, err
		}
	}
	return nil, ErrDbUnknownType
}

// SupportedDBs returns a slice of the registered database types.
func SupportedDBs() []string {
	supported := make([]string, 0, len(driverList))
	for _, drv := range driverList {
		supported = append(supported, drv.DbType)
	}
	return supported
}

// CheckAndOpenDB opens dbtype at path, creating it when absent.
func CheckAndOpenDB(dbtype, path string) (Db, error) {
	db, err := OpenDB(dbtype, path)
	if err == nil {
		return db, nil
	}
	if errors.Cause(err) != ErrDbDoesNotExist {
		return nil, err
	}

	logging.CPrint(logging.INFO, "creating block database", logging.LogFormat{
		"type": dbtype,
		"path": path,
	})
	return CreateDB(dbtype, path)
}
