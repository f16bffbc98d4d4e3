// Package tokenstore はベアラートークンを1つだけ保持する永続ストアを提供する。
//
// ブラウザのlocalStorageに相当するもので、1つのストアは1つのキーに束縛される。
// トークンの中身は検証せず、不透明な文字列として扱う。
// 失敗は握りつぶさず *StorageError として返し、無視するかどうかは呼び出し側が決める。
package tokenstore
