package rdcompare

// Version is the rdcompare release version.
const Version = "0.1.0"
