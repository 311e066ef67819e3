package deps

// stdlibModules is the hand-maintained table of Python 3 standard library
// top-level module names. It is never refreshed from an installed interpreter.
var stdlibModules = map[string]struct{}{
	"__future__": {}, "_thread": {}, "abc": {}, "aifc": {}, "argparse": {}, "array": {},
	"ast": {}, "asynchat": {}, "asyncio": {}, "asyncore": {}, "atexit": {}, "audioop": {},
	"base64": {}, "bdb": {}, "binascii": {}, "binhex": {}, "bisect": {}, "builtins": {},
	"bz2": {}, "calendar": {}, "cgi": {}, "cgitb": {}, "chunk": {}, "cmath": {}, "cmd": {},
	"code": {}, "codecs": {}, "codeop": {}, "collections": {}, "colorsys": {},
	"compileall": {}, "concurrent": {}, "configparser": {}, "contextlib": {},
	"contextvars": {}, "copy": {}, "copyreg": {}, "cProfile": {}, "crypt": {}, "csv": {},
	"ctypes": {}, "curses": {}, "dataclasses": {}, "datetime": {}, "dbm": {}, "decimal": {},
	"difflib": {}, "dis": {}, "distutils": {}, "doctest": {}, "email": {}, "encodings": {},
	"ensurepip": {}, "enum": {}, "errno": {}, "faulthandler": {}, "fcntl": {}, "filecmp": {},
	"fileinput": {}, "fnmatch": {}, "fractions": {}, "ftplib": {}, "functools": {}, "gc": {},
	"getopt": {}, "getpass": {}, "gettext": {}, "glob": {}, "graphlib": {}, "grp": {},
	"gzip": {}, "hashlib": {}, "heapq": {}, "hmac": {}, "html": {}, "http": {}, "idlelib": {},
	"imaplib": {}, "imghdr": {}, "imp": {}, "importlib": {}, "inspect": {}, "io": {},
	"ipaddress": {}, "itertools": {}, "json": {}, "keyword": {}, "lib2to3": {},
	"linecache": {}, "locale": {}, "logging": {}, "lzma": {}, "mailbox": {}, "mailcap": {},
	"marshal": {}, "math": {}, "mimetypes": {}, "mmap": {}, "modulefinder": {}, "msilib": {},
	"msvcrt": {}, "multiprocessing": {}, "netrc": {}, "nis": {}, "nntplib": {}, "ntpath": {},
	"numbers": {}, "operator": {}, "optparse": {}, "os": {}, "ossaudiodev": {}, "parser": {},
	"pathlib": {}, "pdb": {}, "pickle": {}, "pickletools": {}, "pipes": {}, "pkgutil": {},
	"platform": {}, "plistlib": {}, "poplib": {}, "posix": {}, "posixpath": {}, "pprint": {},
	"profile": {}, "pstats": {}, "pty": {}, "pwd": {}, "py_compile": {}, "pyclbr": {},
	"pydoc": {}, "queue": {}, "quopri": {}, "random": {}, "re": {}, "readline": {},
	"reprlib": {}, "resource": {}, "rlcompleter": {}, "runpy": {}, "sched": {},
	"secrets": {}, "select": {}, "selectors": {}, "shelve": {}, "shlex": {}, "shutil": {},
	"signal": {}, "site": {}, "smtpd": {}, "smtplib": {}, "sndhdr": {}, "socket": {},
	"socketserver": {}, "spwd": {}, "sqlite3": {}, "ssl": {}, "stat": {}, "statistics": {},
	"string": {}, "stringprep": {}, "struct": {}, "subprocess": {}, "sunau": {}, "symbol": {},
	"symtable": {}, "sys": {}, "sysconfig": {}, "syslog": {}, "tabnanny": {}, "tarfile": {},
	"telnetlib": {}, "tempfile": {}, "termios": {}, "test": {}, "textwrap": {},
	"threading": {}, "time": {}, "timeit": {}, "tkinter": {}, "token": {}, "tokenize": {},
	"tomllib": {}, "trace": {}, "traceback": {}, "tracemalloc": {}, "tty": {}, "turtle": {},
	"turtledemo": {}, "types": {}, "typing": {}, "unicodedata": {}, "unittest": {},
	"urllib": {}, "uu": {}, "uuid": {}, "venv": {}, "warnings": {}, "wave": {}, "weakref": {},
	"webbrowser": {}, "winreg": {}, "winsound": {}, "wsgiref": {}, "xdrlib": {}, "xml": {},
	"xmlrpc": {}, "zipapp": {}, "zipfile": {}, "zipimport": {}, "zlib": {}, "zoneinfo": {},
}

// IsStdlib reports whether name is a standard library module.
func IsStdlib(name string) bool {
	_, ok := stdlibModules[name]
	return ok
}
